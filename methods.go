package hemlock

import "strings"

// callBuiltinMethod dispatches the fixed set of methods that array,
// string, buffer, channel and task values respond to regardless of any
// user-defined type, called
// from callMethod before falling back to an object's own field lookup.
// The bool result reports whether name was recognized for recv's kind
// at all, letting the caller distinguish "no such method" from a
// genuine runtime error raised while running it.
func callBuiltinMethod(recv Value, name string, args []Value, span Span) (Value, bool, error) {
	switch r := recv.(type) {
	case *ArrayValue:
		return arrayMethod(r, name, args, span)
	case *StringValue:
		return stringMethod(r, name, args, span)
	case *BufferValue:
		return bufferMethod(r, name, args, span)
	case *ChannelValue:
		return channelMethod(r, name, args, span)
	case *TaskValue:
		return taskMethod(r, name, args, span)
	default:
		return nil, false, nil
	}
}

func arrayMethod(a *ArrayValue, name string, args []Value, span Span) (Value, bool, error) {
	switch name {
	case "len":
		return NewIntValue(TagI64, int64(len(a.Elems))), true, nil
	case "push":
		a.Elems = append(a.Elems, args...)
		return a, true, nil
	case "pop":
		if len(a.Elems) == 0 {
			return nil, true, NewRuntimeError(ErrIndexOutOfBounds, span, "pop on empty array")
		}
		last := a.Elems[len(a.Elems)-1]
		a.Elems = a.Elems[:len(a.Elems)-1]
		return last, true, nil
	case "slice":
		if len(args) != 2 {
			return nil, true, argErr("slice", span, 2, len(args))
		}
		lo, loOk := args[0].(*IntValue)
		hi, hiOk := args[1].(*IntValue)
		if !loOk || !hiOk || lo.Val < 0 || hi.Val > int64(len(a.Elems)) || lo.Val > hi.Val {
			return nil, true, NewRuntimeError(ErrIndexOutOfBounds, span, "slice bounds out of range")
		}
		out := make([]Value, hi.Val-lo.Val)
		copy(out, a.Elems[lo.Val:hi.Val])
		return NewArrayValue(out), true, nil
	case "contains":
		if len(args) != 1 {
			return nil, true, argErr("contains", span, 1, len(args))
		}
		for _, e := range a.Elems {
			if ValuesEqual(e, args[0]) {
				return NewBoolValue(true), true, nil
			}
		}
		return NewBoolValue(false), true, nil
	case "index_of":
		if len(args) != 1 {
			return nil, true, argErr("index_of", span, 1, len(args))
		}
		for i, e := range a.Elems {
			if ValuesEqual(e, args[0]) {
				return NewIntValue(TagI64, int64(i)), true, nil
			}
		}
		return NewIntValue(TagI64, -1), true, nil
	default:
		return nil, false, nil
	}
}

// arrayMethodWithEvaluator handles the higher-order array methods that
// need to invoke a user-supplied callback; it is reached through
// evaluator.go's callMethod, which has an *Evaluator in scope that
// plain callBuiltinMethod does not.
func arrayMethodWithEvaluator(ev *Evaluator, a *ArrayValue, name string, args []Value, span Span) (Value, bool, error) {
	switch name {
	case "map":
		if len(args) != 1 {
			return nil, true, argErr("map", span, 1, len(args))
		}
		out := make([]Value, len(a.Elems))
		for i, e := range a.Elems {
			v, err := ev.call(args[0], []Value{e}, span)
			if err != nil {
				return nil, true, err
			}
			out[i] = v
		}
		return NewArrayValue(out), true, nil
	case "filter":
		if len(args) != 1 {
			return nil, true, argErr("filter", span, 1, len(args))
		}
		var out []Value
		for _, e := range a.Elems {
			v, err := ev.call(args[0], []Value{e}, span)
			if err != nil {
				return nil, true, err
			}
			if IsTruthy(v) {
				out = append(out, e)
			}
		}
		return NewArrayValue(out), true, nil
	case "reduce":
		if len(args) != 2 {
			return nil, true, argErr("reduce", span, 2, len(args))
		}
		acc := args[1]
		for _, e := range a.Elems {
			v, err := ev.call(args[0], []Value{acc, e}, span)
			if err != nil {
				return nil, true, err
			}
			acc = v
		}
		return acc, true, nil
	case "for_each":
		if len(args) != 1 {
			return nil, true, argErr("for_each", span, 1, len(args))
		}
		for _, e := range a.Elems {
			if _, err := ev.call(args[0], []Value{e}, span); err != nil {
				return nil, true, err
			}
		}
		return NewNullValue(), true, nil
	default:
		return nil, false, nil
	}
}

func stringMethod(s *StringValue, name string, args []Value, span Span) (Value, bool, error) {
	switch name {
	case "len":
		return NewIntValue(TagI64, int64(len([]rune(s.Val)))), true, nil
	case "byte_len":
		return NewIntValue(TagI64, int64(len(s.Val))), true, nil
	case "upper":
		return NewStringValue(strings.ToUpper(s.Val)), true, nil
	case "lower":
		return NewStringValue(strings.ToLower(s.Val)), true, nil
	case "trim":
		return NewStringValue(strings.TrimSpace(s.Val)), true, nil
	case "contains":
		if len(args) != 1 {
			return nil, true, argErr("contains", span, 1, len(args))
		}
		sub, ok := args[0].(*StringValue)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, span, "contains expects a string")
		}
		return NewBoolValue(strings.Contains(s.Val, sub.Val)), true, nil
	case "split":
		if len(args) != 1 {
			return nil, true, argErr("split", span, 1, len(args))
		}
		sep, ok := args[0].(*StringValue)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, span, "split expects a string separator")
		}
		parts := strings.Split(s.Val, sep.Val)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = NewStringValue(p)
		}
		return NewArrayValue(out), true, nil
	case "index_of":
		if len(args) != 1 {
			return nil, true, argErr("index_of", span, 1, len(args))
		}
		sub, ok := args[0].(*StringValue)
		if !ok {
			return nil, true, NewRuntimeError(ErrType, span, "index_of expects a string")
		}
		return NewIntValue(TagI64, int64(strings.Index(s.Val, sub.Val))), true, nil
	default:
		return nil, false, nil
	}
}

func bufferMethod(b *BufferValue, name string, args []Value, span Span) (Value, bool, error) {
	switch name {
	case "len":
		return NewIntValue(TagI64, int64(len(b.Data))), true, nil
	case "to_string":
		return NewStringValue(string(b.Data)), true, nil
	default:
		return nil, false, nil
	}
}

func channelMethod(c *ChannelValue, name string, args []Value, span Span) (Value, bool, error) {
	switch name {
	case "send":
		if len(args) != 1 {
			return nil, true, argErr("send", span, 1, len(args))
		}
		return NewNullValue(), true, c.Send(args[0])
	case "recv":
		v, ok, err := c.Recv()
		if err != nil {
			return nil, true, err
		}
		if !ok {
			return NewNullValue(), true, nil
		}
		return v, true, nil
	case "close":
		return NewNullValue(), true, c.Close()
	default:
		return nil, false, nil
	}
}

func taskMethod(t *TaskValue, name string, args []Value, span Span) (Value, bool, error) {
	switch name {
	case "join":
		v, err := t.Join()
		return v, true, err
	case "detach":
		t.Detach()
		return NewNullValue(), true, nil
	default:
		return nil, false, nil
	}
}
