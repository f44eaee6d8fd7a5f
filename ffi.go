package hemlock

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// ffiLibraries memoizes one dlopen handle per shared-object path so
// that multiple `extern fn ... from "libm.so"` declarations for the
// same library only open it once.
var (
	ffiLibMu   sync.Mutex
	ffiLibs    = map[string]uintptr{}
)

func loadLibrary(path string) (uintptr, error) {
	ffiLibMu.Lock()
	defer ffiLibMu.Unlock()
	if h, ok := ffiLibs[path]; ok {
		return h, nil
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, err
	}
	ffiLibs[path] = h
	return h, nil
}

// registerExtern resolves an `extern fn` declaration's native symbol
// and binds a callable FFIFunctionValue under its name, so ordinary
// CallExpr dispatch (evaluator.go's call) reaches it the same way it
// reaches any other function.
func registerExtern(ev *Evaluator, n *ExternStmt) error {
	var handle uintptr
	if n.Library != "" {
		h, err := loadLibrary(n.Library)
		if err != nil {
			return NewRuntimeError(ErrFFI, n.Sp, "cannot load library %q: %s", n.Library, err)
		}
		handle = h
	}
	sym, err := purego.Dlsym(handle, n.Name)
	if err != nil {
		return NewRuntimeError(ErrFFI, n.Sp, "cannot resolve symbol %q: %s", n.Name, err)
	}

	paramTypes := make([]TypeTag, len(n.Params))
	for i, p := range n.Params {
		paramTypes[i] = p.Type
	}
	fn := NewFFIFunctionValue(n.Name, n.Library, n.Name, paramTypes, n.RetType)
	fn.call = func(args []Value) (Value, error) {
		return invokeNative(sym, fn, args, n.Sp)
	}
	ev.Globals.Define(n.Name, fn, true)
	return nil
}

func callFFI(fn *FFIFunctionValue, args []Value, span Span) (Value, error) {
	if fn.call == nil {
		return nil, NewRuntimeError(ErrFFI, span, "extern fn %s was never bound to a symbol", fn.Name)
	}
	return fn.call(args)
}

// invokeNative marshals Hemlock values to the uintptr-width argument
// slots purego.SyscallN expects and marshals the single-word return
// back into the declared result tag.
func invokeNative(sym uintptr, fn *FFIFunctionValue, args []Value, span Span) (Value, error) {
	if len(args) != len(fn.ParamTypes) {
		return nil, NewRuntimeError(ErrFFI, span, "%s expects %d arguments, got %d", fn.Name, len(fn.ParamTypes), len(args))
	}
	raw := make([]uintptr, len(args))
	for i, a := range args {
		v, err := marshalArg(a, fn.ParamTypes[i], span)
		if err != nil {
			return nil, err
		}
		raw[i] = v
	}
	r1, _, errno := purego.SyscallN(sym, raw...)
	if errno != 0 {
		return nil, NewRuntimeError(ErrFFI, span, "%s returned errno %d", fn.Name, errno)
	}
	return unmarshalResult(r1, fn.RetType), nil
}

func marshalArg(v Value, want TypeTag, span Span) (uintptr, error) {
	switch n := v.(type) {
	case *IntValue:
		return uintptr(n.Val), nil
	case *UintValue:
		return uintptr(n.Val), nil
	case *BoolValue:
		if n.Val {
			return 1, nil
		}
		return 0, nil
	case *RuneValue:
		return uintptr(n.Val), nil
	case *PtrValue:
		return n.Addr, nil
	case *StringValue:
		return uintptr(unsafe.Pointer(&[]byte(n.Val)[0])), nil
	case *BufferValue:
		if len(n.Data) == 0 {
			return 0, nil
		}
		return uintptr(unsafe.Pointer(&n.Data[0])), nil
	default:
		return 0, NewRuntimeError(ErrFFI, span, "cannot pass a %s across the FFI boundary as %s", v.Tag(), want)
	}
}

func unmarshalResult(r uintptr, want TypeTag) Value {
	switch want {
	case TagBool:
		return NewBoolValue(r != 0)
	case TagPtr:
		return NewPtrValue(r, TagUnknown)
	case TagF32, TagF64:
		return NewFloatValue(want, float64(int64(r)))
	case TagU64:
		return NewUintValue(uint64(r))
	case TagUnknown, TagNull:
		return NewNullValue()
	default:
		return NewIntValue(want, int64(r))
	}
}

// bufferAddr produces a PtrValue aliasing a buffer's backing array, the
// bridge the `ref` keyword uses to pass a Hemlock buffer to an extern
// call expecting an out-parameter pointer.
func bufferAddr(buf *BufferValue) *PtrValue {
	if len(buf.Data) == 0 {
		return NewPtrValue(0, TagU8)
	}
	return NewPtrValue(uintptr(unsafe.Pointer(&buf.Data[0])), TagU8)
}
