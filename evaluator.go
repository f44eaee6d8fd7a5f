package hemlock

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ---- control-flow signals ----
//
// break/continue/return are threaded back up through the Visitor's
// error return the same way a thrown exception is; evalBlock passes
// them on, and the loop, switch and call dispatchers are the only
// places that inspect and consume them instead of propagating further.

type breakSignal struct{}

func (breakSignal) Error() string { return "break outside loop" }

type continueSignal struct{}

func (continueSignal) Error() string { return "continue outside loop" }

type returnSignal struct{ Value Value }

func (returnSignal) Error() string { return "return outside function" }

func isBreak(err error) bool    { _, ok := err.(breakSignal); return ok }
func isContinue(err error) bool { _, ok := err.(continueSignal); return ok }
func isReturn(err error) (returnSignal, bool) {
	r, ok := err.(returnSignal)
	return r, ok
}

// methodTable maps a `define object` type name to its method name to
// the declaration used to build a bound FunctionValue on dispatch.
type methodTable map[string]map[string]*FnStmt

type deferredCall struct {
	call Expr
	env  *Environment
}

// Evaluator tree-walks a parsed Module (or a bundled one), implementing
// Visitor so every node dispatches through Accept without a type switch.
type Evaluator struct {
	Globals   *Environment
	env       *Environment
	methods   methodTable
	templates map[string]*DefineObjectStmt
	modules   *ModuleCache
	config    *RunConfig
	log       zerolog.Logger
	stdout    io.Writer

	result      Value // set by every VisitXxxExpr before returning
	deferStack  [][]deferredCall
	currentFile string

	signals        signalTable
	pendingSignals pendingSignalSet
}

func NewEvaluator(config *RunConfig) *Evaluator {
	globals := NewEnvironment(nil)
	ev := &Evaluator{
		Globals:   globals,
		env:       globals,
		methods:   make(methodTable),
		templates: make(map[string]*DefineObjectStmt),
		config:    config,
		log:       zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
		stdout:    os.Stdout,
	}
	ev.modules = NewModuleCache(ev)
	registerBuiltins(ev)
	return ev
}

// Run evaluates every top-level statement of mod in the evaluator's
// global environment and sweeps the root environment for
// self-referential arrays/objects once the program has finished. It is
// the only caller of BreakCycles in the whole runtime.
func (ev *Evaluator) Run(mod *Module) error {
	err := ev.execModule(mod)
	ev.Globals.BreakCycles()
	return err
}

func (ev *Evaluator) execModule(mod *Module) error {
	ev.currentFile = mod.File
	for _, stmt := range mod.Stmts {
		if err := stmt.Accept(ev); err != nil {
			if t, ok := err.(*ThrownValue); ok {
				return fmt.Errorf("%s: %w", mod.File, t)
			}
			return err
		}
		if err := ev.drainPendingSignals(); err != nil {
			return err
		}
	}
	return nil
}

func (ev *Evaluator) evalExpr(e Expr) (Value, error) {
	if err := e.Accept(ev); err != nil {
		return nil, err
	}
	return ev.result, nil
}

// ---- statements ----

func (ev *Evaluator) VisitLetStmt(n *LetStmt) error {
	val, err := ev.evalExpr(n.Value)
	if err != nil {
		return err
	}
	if n.Type != TagUnknown {
		val, err = coerceToType(val, n.Type, n.Sp)
		if err != nil {
			return err
		}
	}
	ev.env.Define(n.Name, val, n.IsConst)
	return nil
}

func (ev *Evaluator) VisitAssignStmt(n *AssignStmt) error {
	_, err := ev.assign(n.Target, n.Op, n.Value)
	return err
}

func (ev *Evaluator) VisitExprStmt(n *ExprStmt) error {
	_, err := ev.evalExpr(n.Expr)
	return err
}

func (ev *Evaluator) evalBlock(b *BlockStmt, parent *Environment) error {
	saved := ev.env
	ev.env = NewEnvironment(parent)
	defer func() { ev.env = saved }()
	for _, stmt := range b.Stmts {
		if err := stmt.Accept(ev); err != nil {
			return err
		}
	}
	return nil
}

func (ev *Evaluator) VisitBlockStmt(n *BlockStmt) error {
	return ev.evalBlock(n, ev.env)
}

func (ev *Evaluator) VisitIfStmt(n *IfStmt) error {
	cond, err := ev.evalExpr(n.Cond)
	if err != nil {
		return err
	}
	if IsTruthy(cond) {
		return ev.evalBlock(n.Then, ev.env)
	}
	if n.ElseIf != nil {
		return n.ElseIf.Accept(ev)
	}
	if n.Else != nil {
		return ev.evalBlock(n.Else, ev.env)
	}
	return nil
}

func (ev *Evaluator) VisitWhileStmt(n *WhileStmt) error {
	for {
		cond, err := ev.evalExpr(n.Cond)
		if err != nil {
			return err
		}
		if !IsTruthy(cond) {
			return nil
		}
		if err := ev.evalBlock(n.Body, ev.env); err != nil {
			if isBreak(err) {
				return nil
			}
			if isContinue(err) {
				continue
			}
			return err
		}
	}
}

func (ev *Evaluator) VisitForInStmt(n *ForInStmt) error {
	iter, err := ev.evalExpr(n.Iter)
	if err != nil {
		return err
	}
	items, err := iterate(iter)
	if err != nil {
		return NewRuntimeError(ErrType, n.Sp, "%s", err.Error())
	}
	for _, item := range items {
		loopEnv := NewEnvironment(ev.env)
		loopEnv.Define(n.VarName, item, false)
		if err := ev.evalBlock(n.Body, loopEnv); err != nil {
			if isBreak(err) {
				return nil
			}
			if isContinue(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// iterate expands a Value into the sequence a for-in loop walks:
// array elements, or a string's runes.
func iterate(v Value) ([]Value, error) {
	switch n := v.(type) {
	case *ArrayValue:
		return n.Elems, nil
	case *StringValue:
		runes := []rune(n.Val)
		out := make([]Value, len(runes))
		for i, r := range runes {
			out[i] = NewRuneValue(r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s is not iterable", v.Tag())
	}
}

func (ev *Evaluator) VisitBreakStmt(*BreakStmt) error       { return breakSignal{} }
func (ev *Evaluator) VisitContinueStmt(*ContinueStmt) error { return continueSignal{} }

func (ev *Evaluator) VisitReturnStmt(n *ReturnStmt) error {
	if n.Value == nil {
		return returnSignal{Value: NewNullValue()}
	}
	val, err := ev.evalExpr(n.Value)
	if err != nil {
		return err
	}
	return returnSignal{Value: val}
}

func (ev *Evaluator) VisitFnStmt(n *FnStmt) error {
	fn := NewFunctionValue(n.Name, n.Params, n.RetType, n.Body, ev.env)
	fn.IsAsync = n.IsAsync
	ev.env.Define(n.Name, fn, true)
	return nil
}

func (ev *Evaluator) VisitDefineObjectStmt(n *DefineObjectStmt) error {
	ev.templates[n.Name] = n
	table := make(map[string]*FnStmt, len(n.Methods))
	for _, m := range n.Methods {
		table[m.Name] = m
	}
	ev.methods[n.Name] = table
	return nil
}

func (ev *Evaluator) VisitDefineEnumStmt(n *DefineEnumStmt) error {
	ns := NewObjectValue(n.Name)
	var next int64
	for _, m := range n.Members {
		val := next
		if m.Value != nil {
			v, err := ev.evalExpr(m.Value)
			if err != nil {
				return err
			}
			iv, ok := v.(*IntValue)
			if !ok {
				return NewRuntimeError(ErrType, n.Sp, "enum member %s.%s must be an integer", n.Name, m.Name)
			}
			val = iv.Val
		}
		ns.Set(m.Name, NewIntValue(TagI64, val))
		next = val + 1
	}
	ev.env.Define(n.Name, ns, true)
	return nil
}

func (ev *Evaluator) VisitTryStmt(n *TryStmt) error {
	bodyErr := ev.evalBlock(n.Body, ev.env)
	if bodyErr != nil && isThrown(bodyErr) && n.Catch != nil {
		thrown := bodyErr.(*ThrownValue)
		catchEnv := NewEnvironment(ev.env)
		catchEnv.Define(n.Catch.VarName, thrown.Value, false)
		bodyErr = ev.evalBlock(n.Catch.Body, catchEnv)
	}
	if n.Finally != nil {
		if err := ev.evalBlock(n.Finally, ev.env); err != nil {
			return err // finally's own control flow/exception wins
		}
	}
	return bodyErr
}

func (ev *Evaluator) VisitThrowStmt(n *ThrowStmt) error {
	val, err := ev.evalExpr(n.Value)
	if err != nil {
		return err
	}
	return &ThrownValue{Value: val, Span: n.Sp}
}

func (ev *Evaluator) VisitDeferStmt(n *DeferStmt) error {
	if len(ev.deferStack) == 0 {
		return NewRuntimeError(ErrType, n.Sp, "defer used outside a function body")
	}
	top := len(ev.deferStack) - 1
	ev.deferStack[top] = append(ev.deferStack[top], deferredCall{call: n.Call, env: ev.env})
	return nil
}

func (ev *Evaluator) VisitImportStmt(n *ImportStmt) error {
	return ev.modules.Import(ev, n)
}

func (ev *Evaluator) VisitExportStmt(n *ExportStmt) error {
	switch n.Kind {
	case ExportDecl:
		return n.Decl.Accept(ev)
	case ExportNames, ExportFrom:
		// Binding visibility for re-exports is resolved by the module
		// cache when a dependent module imports this one; nothing to
		// evaluate here beyond recording the names, which the cache
		// reads directly off the AST node.
		return nil
	}
	return nil
}

func (ev *Evaluator) VisitExternStmt(n *ExternStmt) error {
	return registerExtern(ev, n)
}

func (ev *Evaluator) VisitSwitchStmt(n *SwitchStmt) error {
	subject, err := ev.evalExpr(n.Subject)
	if err != nil {
		return err
	}
	var defaultCase *SwitchCase
	for i := range n.Cases {
		c := &n.Cases[i]
		if len(c.Values) == 0 {
			defaultCase = c
			continue
		}
		for _, valExpr := range c.Values {
			val, err := ev.evalExpr(valExpr)
			if err != nil {
				return err
			}
			if ValuesEqual(subject, val) {
				return ev.runSwitchBody(c.Body)
			}
		}
	}
	if defaultCase != nil {
		return ev.runSwitchBody(defaultCase.Body)
	}
	return nil
}

func (ev *Evaluator) runSwitchBody(stmts []Stmt) error {
	saved := ev.env
	ev.env = NewEnvironment(saved)
	defer func() { ev.env = saved }()
	for _, s := range stmts {
		if err := s.Accept(ev); err != nil {
			if isBreak(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

// ---- assignment ----

func (ev *Evaluator) assign(target Expr, op TokenKind, valueExpr Expr) (Value, error) {
	rhs, err := ev.evalExpr(valueExpr)
	if err != nil {
		return nil, err
	}
	if op != TokAssign {
		cur, err := ev.evalExpr(target)
		if err != nil {
			return nil, err
		}
		rhs, err = applyCompoundOp(op, cur, rhs, target.Span())
		if err != nil {
			return nil, err
		}
	}
	switch t := target.(type) {
	case *IdentExpr:
		if err := ev.env.Set(t.Name, rhs); err != nil {
			return nil, NewRuntimeError(ErrName, t.Sp, "%s", err.Error())
		}
		return rhs, nil
	case *IndexExpr:
		recv, err := ev.evalExpr(t.Recv)
		if err != nil {
			return nil, err
		}
		idx, err := ev.evalExpr(t.Index)
		if err != nil {
			return nil, err
		}
		return rhs, assignIndex(recv, idx, rhs, t.Sp)
	case *PropertyExpr:
		recv, err := ev.evalExpr(t.Recv)
		if err != nil {
			return nil, err
		}
		obj, ok := recv.(*ObjectValue)
		if !ok {
			return nil, NewRuntimeError(ErrType, t.Sp, "cannot assign property %s on a %s", t.Name, recv.Tag())
		}
		obj.Set(t.Name, rhs)
		return rhs, nil
	default:
		return nil, NewRuntimeError(ErrType, target.Span(), "invalid assignment target")
	}
}

func assignIndex(recv, idx, val Value, span Span) error {
	switch r := recv.(type) {
	case *ArrayValue:
		i, ok := idx.(*IntValue)
		if !ok {
			return NewRuntimeError(ErrType, span, "array index must be an integer")
		}
		if i.Val < 0 || int(i.Val) >= len(r.Elems) {
			return NewRuntimeError(ErrIndexOutOfBounds, span, "index %d out of bounds (len %d)", i.Val, len(r.Elems))
		}
		r.Elems[i.Val] = val
		return nil
	case *BufferValue:
		i, ok := idx.(*IntValue)
		if !ok {
			return NewRuntimeError(ErrType, span, "buffer index must be an integer")
		}
		b, ok := val.(*IntValue)
		if !ok || b.Val < 0 || b.Val > 255 {
			return NewRuntimeError(ErrType, span, "buffer element must be a byte-ranged integer")
		}
		if i.Val < 0 || int(i.Val) >= len(r.Data) {
			return NewRuntimeError(ErrIndexOutOfBounds, span, "index %d out of bounds (len %d)", i.Val, len(r.Data))
		}
		r.Data[i.Val] = byte(b.Val)
		return nil
	default:
		return NewRuntimeError(ErrType, span, "%s is not indexable for assignment", recv.Tag())
	}
}

func applyCompoundOp(op TokenKind, cur, rhs Value, span Span) (Value, error) {
	base := map[TokenKind]TokenKind{
		TokPlusAssign: TokPlus, TokMinusAssign: TokMinus, TokStarAssign: TokStar,
		TokSlashAssign: TokSlash, TokPercentAssign: TokPercent, TokAmpAssign: TokAmp,
		TokPipeAssign: TokPipe, TokCaretAssign: TokCaret, TokShlAssign: TokShl, TokShrAssign: TokShr,
	}[op]
	return evalBinaryOp(base, cur, rhs, span)
}

// ---- expressions ----

func (ev *Evaluator) VisitIdentExpr(n *IdentExpr) error {
	val, ok := ev.env.Get(n.Name)
	if !ok {
		return NewRuntimeError(ErrName, n.Sp, "undefined name %q", n.Name)
	}
	ev.result = val
	return nil
}

func (ev *Evaluator) VisitIntLit(n *IntLit) error {
	tag := n.Type
	if tag == TagUnknown {
		tag = TagI64
	}
	val, err := coerceToType(NewIntValue(TagI64, n.Val), tag, n.Sp)
	if err != nil {
		return err
	}
	ev.result = val
	return nil
}

func (ev *Evaluator) VisitFloatLit(n *FloatLit) error {
	ev.result = NewFloatValue(TagF64, n.Val)
	return nil
}

func (ev *Evaluator) VisitStringLit(n *StringLit) error {
	ev.result = NewStringValue(n.Val)
	return nil
}

func (ev *Evaluator) VisitRuneLit(n *RuneLit) error {
	ev.result = NewRuneValue(n.Val)
	return nil
}

func (ev *Evaluator) VisitBoolLit(n *BoolLit) error {
	ev.result = NewBoolValue(n.Val)
	return nil
}

func (ev *Evaluator) VisitNullLit(*NullLit) error {
	ev.result = NewNullValue()
	return nil
}

func (ev *Evaluator) VisitArrayLit(n *ArrayLit) error {
	elems := make([]Value, len(n.Elems))
	for i, e := range n.Elems {
		v, err := ev.evalExpr(e)
		if err != nil {
			return err
		}
		elems[i] = v
	}
	ev.result = NewArrayValue(elems)
	return nil
}

func (ev *Evaluator) VisitObjectLit(n *ObjectLit) error {
	obj := NewObjectValue(n.TypeName)
	if n.TypeName != "" {
		tmpl, ok := ev.templates[n.TypeName]
		if !ok {
			return NewRuntimeError(ErrName, n.Sp, "undefined object type %q", n.TypeName)
		}
		for _, f := range tmpl.Fields {
			if f.Default != nil {
				def, err := ev.evalExpr(f.Default)
				if err != nil {
					return err
				}
				obj.Set(f.Name, def)
			}
		}
	}
	for _, fl := range n.Fields {
		v, err := ev.evalExpr(fl.Value)
		if err != nil {
			return err
		}
		obj.Set(fl.Name, v)
	}
	if n.TypeName != "" {
		if err := checkRequiredFields(ev.templates[n.TypeName], obj, n.Sp); err != nil {
			return err
		}
	}
	ev.result = obj
	return nil
}

func checkRequiredFields(tmpl *DefineObjectStmt, obj *ObjectValue, span Span) error {
	for _, f := range tmpl.Fields {
		if f.Optional {
			continue
		}
		if _, ok := obj.Get(f.Name); !ok {
			return NewRuntimeError(ErrType, span, "missing required field %q for %s", f.Name, tmpl.Name)
		}
	}
	return nil
}

func (ev *Evaluator) VisitFnExpr(n *FnExpr) error {
	fn := NewFunctionValue("", n.Params, n.RetType, n.Body, ev.env)
	fn.IsAsync = n.IsAsync
	ev.result = fn
	return nil
}

func (ev *Evaluator) VisitUnaryExpr(n *UnaryExpr) error {
	val, err := ev.evalExpr(n.Value)
	if err != nil {
		return err
	}
	out, err := evalUnaryOp(n.Op, val, n.Sp)
	if err != nil {
		return err
	}
	ev.result = out
	return nil
}

func (ev *Evaluator) VisitBinaryExpr(n *BinaryExpr) error {
	left, err := ev.evalExpr(n.Left)
	if err != nil {
		return err
	}
	right, err := ev.evalExpr(n.Right)
	if err != nil {
		return err
	}
	out, err := evalBinaryOp(n.Op, left, right, n.Sp)
	if err != nil {
		return err
	}
	ev.result = out
	return nil
}

func (ev *Evaluator) VisitLogicalExpr(n *LogicalExpr) error {
	left, err := ev.evalExpr(n.Left)
	if err != nil {
		return err
	}
	if n.Op == TokAndAnd && !IsTruthy(left) {
		ev.result = left
		return nil
	}
	if n.Op == TokOrOr && IsTruthy(left) {
		ev.result = left
		return nil
	}
	right, err := ev.evalExpr(n.Right)
	if err != nil {
		return err
	}
	ev.result = right
	return nil
}

func (ev *Evaluator) VisitAssignExpr(n *AssignExpr) error {
	val, err := ev.assign(n.Target, n.Op, n.Value)
	if err != nil {
		return err
	}
	ev.result = val
	return nil
}

func (ev *Evaluator) VisitCallExpr(n *CallExpr) error {
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := ev.evalExpr(a)
		if err != nil {
			return err
		}
		args[i] = v
	}

	if prop, ok := n.Callee.(*PropertyExpr); ok {
		recv, err := ev.evalExpr(prop.Recv)
		if err != nil {
			return err
		}
		out, err := ev.callMethod(recv, prop.Name, args, n.Sp)
		if err != nil {
			return err
		}
		ev.result = out
		return nil
	}

	callee, err := ev.evalExpr(n.Callee)
	if err != nil {
		return err
	}
	out, err := ev.call(callee, args, n.Sp)
	if err != nil {
		return err
	}
	ev.result = out
	return nil
}

// callMethod dispatches a `recv.name(args)` call: a `define object`
// method table first, the built-in array/string methods second, then
// a plain callable value stored under that field name.
func (ev *Evaluator) callMethod(recv Value, name string, args []Value, span Span) (Value, error) {
	if obj, ok := recv.(*ObjectValue); ok {
		if table, ok := ev.methods[obj.TypeName]; ok {
			if decl, ok := table[name]; ok {
				fn := NewFunctionValue(decl.Name, decl.Params, decl.RetType, decl.Body, ev.env)
				fn.Receiver = obj
				return ev.call(fn, args, span)
			}
		}
	}
	if arr, ok := recv.(*ArrayValue); ok {
		if out, handled, err := arrayMethodWithEvaluator(ev, arr, name, args, span); handled {
			return out, err
		}
	}
	if out, handled, err := callBuiltinMethod(recv, name, args, span); handled {
		return out, err
	}
	if obj, ok := recv.(*ObjectValue); ok {
		if field, ok := obj.Get(name); ok {
			return ev.call(field, args, span)
		}
	}
	return nil, NewRuntimeError(ErrName, span, "%s has no method %q", recv.Tag(), name)
}

// call invokes any callable Value: a closure, a builtin, or a resolved
// FFI function.
func (ev *Evaluator) call(callee Value, args []Value, span Span) (Value, error) {
	switch fn := callee.(type) {
	case *FunctionValue:
		return ev.callFunction(fn, args, span)
	case *BuiltinFnValue:
		return fn.Fn(ev, args, span)
	case *FFIFunctionValue:
		return callFFI(fn, args, span)
	default:
		return nil, NewRuntimeError(ErrType, span, "%s is not callable", callee.Tag())
	}
}

func (ev *Evaluator) callFunction(fn *FunctionValue, args []Value, span Span) (result Value, rerr error) {
	if ev.config.GetBool("evaluator.trace_calls") {
		ev.log.Debug().Str("fn", fn.Name).Int("args", len(args)).Str("at", span.String()).Msg("call")
	}
	callEnv := NewEnvironment(fn.Closure)
	if fn.Receiver != nil {
		callEnv.Define("self", fn.Receiver, true)
	}
	for i, p := range fn.Params {
		var val Value = NewNullValue()
		if i < len(args) {
			val = args[i]
		}
		if p.Type != TagUnknown {
			var err error
			val, err = coerceToType(val, p.Type, span)
			if err != nil {
				return nil, err
			}
		}
		callEnv.Define(p.Name, val, false)
	}

	ev.deferStack = append(ev.deferStack, nil)
	top := len(ev.deferStack) - 1
	savedEnv := ev.env
	ev.env = callEnv
	defer func() {
		ev.env = savedEnv
		deferred := ev.deferStack[top]
		ev.deferStack = ev.deferStack[:top]
		for i := len(deferred) - 1; i >= 0; i-- {
			saved := ev.env
			ev.env = deferred[i].env
			_, derr := ev.evalExpr(deferred[i].call)
			ev.env = saved
			if derr != nil && rerr == nil {
				rerr = derr
			}
		}
	}()

	err := ev.evalBlock(fn.Body, callEnv)
	if err == nil {
		return NewNullValue(), nil
	}
	if rs, ok := isReturn(err); ok {
		return rs.Value, nil
	}
	return nil, err
}

func (ev *Evaluator) VisitIndexExpr(n *IndexExpr) error {
	recv, err := ev.evalExpr(n.Recv)
	if err != nil {
		return err
	}
	idx, err := ev.evalExpr(n.Index)
	if err != nil {
		return err
	}
	out, err := indexValue(recv, idx, n.Sp)
	if err != nil {
		return err
	}
	ev.result = out
	return nil
}

func indexValue(recv, idx Value, span Span) (Value, error) {
	i, ok := idx.(*IntValue)
	if !ok {
		return nil, NewRuntimeError(ErrType, span, "index must be an integer")
	}
	switch r := recv.(type) {
	case *ArrayValue:
		if i.Val < 0 || int(i.Val) >= len(r.Elems) {
			return nil, NewRuntimeError(ErrIndexOutOfBounds, span, "index %d out of bounds (len %d)", i.Val, len(r.Elems))
		}
		return r.Elems[i.Val], nil
	case *StringValue:
		runes := []rune(r.Val)
		if i.Val < 0 || int(i.Val) >= len(runes) {
			return nil, NewRuntimeError(ErrIndexOutOfBounds, span, "index %d out of bounds (len %d)", i.Val, len(runes))
		}
		return NewRuneValue(runes[i.Val]), nil
	case *BufferValue:
		if i.Val < 0 || int(i.Val) >= len(r.Data) {
			return nil, NewRuntimeError(ErrIndexOutOfBounds, span, "index %d out of bounds (len %d)", i.Val, len(r.Data))
		}
		return NewIntValue(TagU8, int64(r.Data[i.Val])), nil
	default:
		return nil, NewRuntimeError(ErrType, span, "%s is not indexable", recv.Tag())
	}
}

func (ev *Evaluator) VisitPropertyExpr(n *PropertyExpr) error {
	recv, err := ev.evalExpr(n.Recv)
	if err != nil {
		return err
	}
	out, err := getProperty(recv, n.Name, n.Sp)
	if err != nil {
		return err
	}
	ev.result = out
	return nil
}

func (ev *Evaluator) VisitOptPropertyExpr(n *OptPropertyExpr) error {
	recv, err := ev.evalExpr(n.Recv)
	if err != nil {
		return err
	}
	if _, isNull := recv.(*NullValue); isNull {
		ev.result = NewNullValue()
		return nil
	}
	out, err := getProperty(recv, n.Name, n.Sp)
	if err != nil {
		return err
	}
	ev.result = out
	return nil
}

func getProperty(recv Value, name string, span Span) (Value, error) {
	switch r := recv.(type) {
	case *ObjectValue:
		if v, ok := r.Get(name); ok {
			return v, nil
		}
		return nil, NewRuntimeError(ErrName, span, "%s has no field %q", r.TypeName, name)
	case *ArrayValue:
		if name == "length" {
			return NewIntValue(TagI64, int64(len(r.Elems))), nil
		}
	case *StringValue:
		if name == "length" {
			return NewIntValue(TagI64, int64(len([]rune(r.Val)))), nil
		}
	case *BufferValue:
		if name == "length" {
			return NewIntValue(TagI64, int64(len(r.Data))), nil
		}
	}
	return nil, NewRuntimeError(ErrName, span, "%s has no property %q", recv.Tag(), name)
}

func (ev *Evaluator) VisitNullCoalesceExpr(n *NullCoalesceExpr) error {
	left, err := ev.evalExpr(n.Left)
	if err != nil {
		return err
	}
	if _, isNull := left.(*NullValue); !isNull {
		ev.result = left
		return nil
	}
	right, err := ev.evalExpr(n.Right)
	if err != nil {
		return err
	}
	ev.result = right
	return nil
}

func (ev *Evaluator) VisitAwaitExpr(n *AwaitExpr) error {
	val, err := ev.evalExpr(n.Value)
	if err != nil {
		return err
	}
	task, ok := val.(*TaskValue)
	if !ok {
		return NewRuntimeError(ErrType, n.Sp, "await requires a task, got %s", val.Tag())
	}
	out, err := task.Join()
	if err != nil {
		return err
	}
	ev.result = out
	return nil
}

func (ev *Evaluator) VisitSelfExpr(n *SelfExpr) error {
	val, ok := ev.env.Get("self")
	if !ok {
		return NewRuntimeError(ErrName, n.Sp, "self used outside a method body")
	}
	ev.result = val
	return nil
}

func (ev *Evaluator) VisitRefExpr(n *RefExpr) error {
	ident, ok := n.Value.(*IdentExpr)
	if !ok {
		return NewRuntimeError(ErrType, n.Sp, "ref requires a plain variable")
	}
	val, ok := ev.env.Get(ident.Name)
	if !ok {
		return NewRuntimeError(ErrName, n.Sp, "undefined name %q", ident.Name)
	}
	buf, ok := val.(*BufferValue)
	if !ok {
		return NewRuntimeError(ErrType, n.Sp, "ref only supports buffer values, got %s", val.Tag())
	}
	ev.result = bufferAddr(buf)
	return nil
}

// ---- numeric/type coercion ----

func coerceToType(v Value, tag TypeTag, span Span) (Value, error) {
	switch tag {
	case TagU64:
		switch n := v.(type) {
		case *IntValue:
			if n.Val < 0 {
				return nil, NewRuntimeError(ErrRange, span, "value %d out of range for u64", n.Val)
			}
			return NewUintValue(uint64(n.Val)), nil
		case *UintValue:
			return n, nil
		}
		return nil, NewRuntimeError(ErrType, span, "cannot assign %s to u64", v.Tag())
	case TagI8, TagI16, TagI32, TagI64, TagU8, TagU16, TagU32:
		var raw int64
		switch n := v.(type) {
		case *IntValue:
			raw = n.Val
		case *UintValue:
			raw = int64(n.Val)
		default:
			return nil, NewRuntimeError(ErrType, span, "cannot assign %s to %s", v.Tag(), tag)
		}
		bounds, ok := intRanges[tag]
		if ok && (raw < bounds[0] || raw > bounds[1]) {
			return nil, NewRuntimeError(ErrRange, span, "value %d out of range for %s", raw, tag)
		}
		return NewIntValue(tag, raw), nil
	case TagF32, TagF64:
		switch n := v.(type) {
		case *FloatValue:
			return NewFloatValue(tag, n.Val), nil
		case *IntValue:
			return NewFloatValue(tag, float64(n.Val)), nil
		case *UintValue:
			return NewFloatValue(tag, float64(n.Val)), nil
		}
		return nil, NewRuntimeError(ErrType, span, "cannot assign %s to %s", v.Tag(), tag)
	case TagBool:
		if _, ok := v.(*BoolValue); !ok {
			return nil, NewRuntimeError(ErrType, span, "cannot assign %s to bool", v.Tag())
		}
		return v, nil
	case TagRune:
		if _, ok := v.(*RuneValue); !ok {
			return nil, NewRuntimeError(ErrType, span, "cannot assign %s to rune", v.Tag())
		}
		return v, nil
	case TagString:
		if _, ok := v.(*StringValue); !ok {
			return nil, NewRuntimeError(ErrType, span, "cannot assign %s to string", v.Tag())
		}
		return v, nil
	default:
		return v, nil
	}
}

func evalUnaryOp(op TokenKind, val Value, span Span) (Value, error) {
	switch op {
	case TokBang:
		return NewBoolValue(!IsTruthy(val)), nil
	case TokMinus:
		switch n := val.(type) {
		case *IntValue:
			return NewIntValue(n.TagV, -n.Val), nil
		case *FloatValue:
			return NewFloatValue(n.TagV, -n.Val), nil
		case *UintValue:
			return nil, NewRuntimeError(ErrType, span, "cannot negate an unsigned u64 value")
		}
		return nil, NewRuntimeError(ErrType, span, "cannot negate %s", val.Tag())
	case TokTilde:
		switch n := val.(type) {
		case *IntValue:
			return NewIntValue(n.TagV, ^n.Val), nil
		case *UintValue:
			return NewUintValue(^n.Val), nil
		}
		return nil, NewRuntimeError(ErrType, span, "cannot bitwise-complement %s", val.Tag())
	}
	return nil, NewRuntimeError(ErrType, span, "unknown unary operator")
}

func evalBinaryOp(op TokenKind, left, right Value, span Span) (Value, error) {
	switch op {
	case TokEq:
		return NewBoolValue(ValuesEqual(left, right)), nil
	case TokNeq:
		return NewBoolValue(!ValuesEqual(left, right)), nil
	}

	if ls, ok := left.(*StringValue); ok && op == TokPlus {
		rs, ok := right.(*StringValue)
		if !ok {
			return nil, NewRuntimeError(ErrType, span, "cannot add string and %s", right.Tag())
		}
		return NewStringValue(ls.Val + rs.Val), nil
	}

	switch op {
	case TokLt, TokLte, TokGt, TokGte:
		return evalComparison(op, left, right, span)
	case TokAmp, TokPipe, TokCaret, TokShl, TokShr:
		return evalBitwise(op, left, right, span)
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, NewRuntimeError(ErrType, span, "incompatible operand types %s and %s", left.Tag(), right.Tag())
	}

	_, lIsFloat := left.(*FloatValue)
	_, rIsFloat := right.(*FloatValue)
	if lIsFloat || rIsFloat {
		out, err := floatArith(op, lf, rf, span)
		if err != nil {
			return nil, err
		}
		return NewFloatValue(TagF64, out), nil
	}

	if lu, ok := left.(*UintValue); ok {
		ru := toUint(right)
		out, err := uintArith(op, lu.Val, ru, span)
		if err != nil {
			return nil, err
		}
		return NewUintValue(out), nil
	}
	if ru, ok := right.(*UintValue); ok {
		lu := toUint(left)
		out, err := uintArith(op, lu, ru.Val, span)
		if err != nil {
			return nil, err
		}
		return NewUintValue(out), nil
	}

	li := left.(*IntValue)
	ri := right.(*IntValue)
	out, err := intArith(op, li.Val, ri.Val, span)
	if err != nil {
		return nil, err
	}
	tag := li.TagV
	if tag != ri.TagV {
		tag = TagI64
	}
	return NewIntValue(tag, out), nil
}

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case *IntValue:
		return float64(n.Val), true
	case *UintValue:
		return float64(n.Val), true
	case *FloatValue:
		return n.Val, true
	}
	return 0, false
}

func toUint(v Value) uint64 {
	switch n := v.(type) {
	case *IntValue:
		return uint64(n.Val)
	case *UintValue:
		return n.Val
	}
	return 0
}

func floatArith(op TokenKind, l, r float64, span Span) (float64, error) {
	switch op {
	case TokPlus:
		return l + r, nil
	case TokMinus:
		return l - r, nil
	case TokStar:
		return l * r, nil
	case TokSlash:
		if r == 0 {
			return 0, NewRuntimeError(ErrDivisionByZero, span, "division by zero")
		}
		return l / r, nil
	default:
		return 0, NewRuntimeError(ErrType, span, "operator not valid for float operands")
	}
}

func intArith(op TokenKind, l, r int64, span Span) (int64, error) {
	switch op {
	case TokPlus:
		return l + r, nil
	case TokMinus:
		return l - r, nil
	case TokStar:
		return l * r, nil
	case TokSlash:
		if r == 0 {
			return 0, NewRuntimeError(ErrDivisionByZero, span, "division by zero")
		}
		return l / r, nil
	case TokPercent:
		if r == 0 {
			return 0, NewRuntimeError(ErrDivisionByZero, span, "division by zero")
		}
		return l % r, nil
	default:
		return 0, NewRuntimeError(ErrType, span, "operator not valid for integer operands")
	}
}

func uintArith(op TokenKind, l, r uint64, span Span) (uint64, error) {
	switch op {
	case TokPlus:
		return l + r, nil
	case TokMinus:
		return l - r, nil
	case TokStar:
		return l * r, nil
	case TokSlash:
		if r == 0 {
			return 0, NewRuntimeError(ErrDivisionByZero, span, "division by zero")
		}
		return l / r, nil
	case TokPercent:
		if r == 0 {
			return 0, NewRuntimeError(ErrDivisionByZero, span, "division by zero")
		}
		return l % r, nil
	default:
		return 0, NewRuntimeError(ErrType, span, "operator not valid for integer operands")
	}
}

func evalComparison(op TokenKind, left, right Value, span Span) (Value, error) {
	if ls, ok := left.(*StringValue); ok {
		rs, ok := right.(*StringValue)
		if !ok {
			return nil, NewRuntimeError(ErrType, span, "cannot compare string and %s", right.Tag())
		}
		var res bool
		switch op {
		case TokLt:
			res = ls.Val < rs.Val
		case TokLte:
			res = ls.Val <= rs.Val
		case TokGt:
			res = ls.Val > rs.Val
		case TokGte:
			res = ls.Val >= rs.Val
		}
		return NewBoolValue(res), nil
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, NewRuntimeError(ErrType, span, "cannot compare %s and %s", left.Tag(), right.Tag())
	}
	var res bool
	switch op {
	case TokLt:
		res = lf < rf
	case TokLte:
		res = lf <= rf
	case TokGt:
		res = lf > rf
	case TokGte:
		res = lf >= rf
	}
	return NewBoolValue(res), nil
}

func evalBitwise(op TokenKind, left, right Value, span Span) (Value, error) {
	if lu, ok := left.(*UintValue); ok {
		r := toUint(right)
		return NewUintValue(bitwiseOp(op, lu.Val, r)), nil
	}
	if ru, ok := right.(*UintValue); ok {
		l := toUint(left)
		return NewUintValue(bitwiseOp(op, l, ru.Val)), nil
	}
	li, lok := left.(*IntValue)
	ri, rok := right.(*IntValue)
	if !lok || !rok {
		return nil, NewRuntimeError(ErrType, span, "bitwise operators require integer operands")
	}
	tag := li.TagV
	if tag != ri.TagV {
		tag = TagI64
	}
	return NewIntValue(tag, int64(bitwiseOp(op, uint64(li.Val), uint64(ri.Val)))), nil
}

func bitwiseOp(op TokenKind, l, r uint64) uint64 {
	switch op {
	case TokAmp:
		return l & r
	case TokPipe:
		return l | r
	case TokCaret:
		return l ^ r
	case TokShl:
		return l << r
	case TokShr:
		return l >> r
	}
	return 0
}
