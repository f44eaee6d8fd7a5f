package hemlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Value is the tagged union every Hemlock runtime quantity satisfies.
// Scalars (numbers, bool, rune, null, ptr) are plain Go values; the
// heap-backed variants (string, buffer, array, object, file, function,
// builtin_fn, ffi_function, task, channel) carry a reference count
// mirroring the host language's manual lifetime model even though Go's
// own GC would reclaim them regardless — Retain/Release exist so the
// evaluator's semantics (and BreakCycles, see environment.go) match
// the spec rather than leaning on escape analysis.
type Value interface {
	Tag() TypeTag
	Inspect() string
	Accept(ValueVisitor) error
}

// ValueVisitor lets a pass handle every Value variant without a type
// switch at each call site. No type in this package implements it: the
// serializer encodes AST nodes, and `print` uses Inspect.
type ValueVisitor interface {
	VisitIntValue(*IntValue) error
	VisitUintValue(*UintValue) error
	VisitFloatValue(*FloatValue) error
	VisitBoolValue(*BoolValue) error
	VisitRuneValue(*RuneValue) error
	VisitNullValue(*NullValue) error
	VisitPtrValue(*PtrValue) error
	VisitTypeTagValue(*TypeTagValue) error
	VisitStringValue(*StringValue) error
	VisitBufferValue(*BufferValue) error
	VisitArrayValue(*ArrayValue) error
	VisitObjectValue(*ObjectValue) error
	VisitFileValue(*FileValue) error
	VisitFunctionValue(*FunctionValue) error
	VisitBuiltinFnValue(*BuiltinFnValue) error
	VisitFFIFunctionValue(*FFIFunctionValue) error
	VisitTaskValue(*TaskValue) error
	VisitChannelValue(*ChannelValue) error
}

// heapHeader backs a refcounted heap value whose lifetime only matters
// within a single goroutine's environment chain (string, buffer, array,
// object, function, file, the two builtin-call wrappers).
type heapHeader struct{ refcount int32 }

func (h *heapHeader) Retain()         { h.refcount++ }
func (h *heapHeader) Release() int32  { h.refcount--; return h.refcount }
func (h *heapHeader) RefCount() int32 { return h.refcount }

// atomicHeapHeader backs the two variants that are routinely shared
// across OS-thread-backed tasks: Task itself and Channel.
type atomicHeapHeader struct{ refcount int32 }

func (h *atomicHeapHeader) Retain()         { atomic.AddInt32(&h.refcount, 1) }
func (h *atomicHeapHeader) Release() int32  { return atomic.AddInt32(&h.refcount, -1) }
func (h *atomicHeapHeader) RefCount() int32 { return atomic.LoadInt32(&h.refcount) }

// ---- Scalars ----

type IntValue struct {
	TagV TypeTag // one of TagI8, TagI16, TagI32, TagI64, TagU8, TagU16, TagU32
	Val  int64
}

func NewIntValue(tag TypeTag, val int64) *IntValue { return &IntValue{TagV: tag, Val: val} }
func (n *IntValue) Tag() TypeTag                   { return n.TagV }
func (n *IntValue) Inspect() string                { return strconv.FormatInt(n.Val, 10) }
func (n *IntValue) Accept(v ValueVisitor) error    { return v.VisitIntValue(n) }

// UintValue carries TagU64 alone: its range (0..2^64-1) does not fit
// in an int64, so it is the one integer tag kept in its own variant.
type UintValue struct{ Val uint64 }

func NewUintValue(val uint64) *UintValue        { return &UintValue{Val: val} }
func (n *UintValue) Tag() TypeTag                { return TagU64 }
func (n *UintValue) Inspect() string             { return strconv.FormatUint(n.Val, 10) }
func (n *UintValue) Accept(v ValueVisitor) error { return v.VisitUintValue(n) }

type FloatValue struct {
	TagV TypeTag // TagF32 or TagF64
	Val  float64
}

func NewFloatValue(tag TypeTag, val float64) *FloatValue { return &FloatValue{TagV: tag, Val: val} }
func (n *FloatValue) Tag() TypeTag                       { return n.TagV }
func (n *FloatValue) Inspect() string                    { return strconv.FormatFloat(n.Val, 'g', -1, 64) }
func (n *FloatValue) Accept(v ValueVisitor) error        { return v.VisitFloatValue(n) }

type BoolValue struct{ Val bool }

func NewBoolValue(val bool) *BoolValue          { return &BoolValue{Val: val} }
func (n *BoolValue) Tag() TypeTag                { return TagBool }
func (n *BoolValue) Inspect() string             { return strconv.FormatBool(n.Val) }
func (n *BoolValue) Accept(v ValueVisitor) error { return v.VisitBoolValue(n) }

type RuneValue struct{ Val rune }

func NewRuneValue(val rune) *RuneValue          { return &RuneValue{Val: val} }
func (n *RuneValue) Tag() TypeTag                { return TagRune }
func (n *RuneValue) Inspect() string             { return "'" + escapeLiteral(string(n.Val)) + "'" }
func (n *RuneValue) Accept(v ValueVisitor) error { return v.VisitRuneValue(n) }

type NullValue struct{}

func NewNullValue() *NullValue                  { return &NullValue{} }
func (n *NullValue) Tag() TypeTag                { return TagNull }
func (n *NullValue) Inspect() string             { return "null" }
func (n *NullValue) Accept(v ValueVisitor) error { return v.VisitNullValue(n) }

// PtrValue is an opaque native address produced by alloc/buffer_to_ptr
// or an extern call's return value; Pointee records the element tag
// used by the ptr_read_*/ptr_write_* dereference builtins.
type PtrValue struct {
	Addr    uintptr
	Pointee TypeTag
}

func NewPtrValue(addr uintptr, pointee TypeTag) *PtrValue {
	return &PtrValue{Addr: addr, Pointee: pointee}
}
func (n *PtrValue) Tag() TypeTag               { return TagPtr }
func (n *PtrValue) Inspect() string            { return fmt.Sprintf("0x%x", n.Addr) }
func (n *PtrValue) Accept(v ValueVisitor) error { return v.VisitPtrValue(n) }

// TypeTagValue reifies a type name as a first-class value, returned by
// `typeof` and comparable against other type values with `==`.
type TypeTagValue struct{ Val TypeTag }

func NewTypeTagValue(val TypeTag) *TypeTagValue { return &TypeTagValue{Val: val} }
func (n *TypeTagValue) Tag() TypeTag             { return TagTypeTag }
func (n *TypeTagValue) Inspect() string          { return n.Val.String() }
func (n *TypeTagValue) Accept(v ValueVisitor) error { return v.VisitTypeTagValue(n) }

// ---- Heap values ----

type StringValue struct {
	heapHeader
	Val string
}

func NewStringValue(val string) *StringValue       { return &StringValue{Val: val} }
func (n *StringValue) Tag() TypeTag                 { return TagString }
func (n *StringValue) Inspect() string              { return strconvQuote(n.Val) }
func (n *StringValue) Accept(v ValueVisitor) error  { return v.VisitStringValue(n) }

type BufferValue struct {
	heapHeader
	Data []byte
}

func NewBufferValue(size int) *BufferValue          { return &BufferValue{Data: make([]byte, size)} }
func (n *BufferValue) Tag() TypeTag                 { return TagBuffer }
func (n *BufferValue) Inspect() string              { return fmt.Sprintf("buffer(%d)", len(n.Data)) }
func (n *BufferValue) Accept(v ValueVisitor) error  { return v.VisitBufferValue(n) }

type ArrayValue struct {
	heapHeader
	Elems []Value
}

func NewArrayValue(elems []Value) *ArrayValue      { return &ArrayValue{Elems: elems} }
func (n *ArrayValue) Tag() TypeTag                  { return TagArray }
func (n *ArrayValue) Accept(v ValueVisitor) error   { return v.VisitArrayValue(n) }
func (n *ArrayValue) Inspect() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range n.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.Inspect())
	}
	b.WriteByte(']')
	return b.String()
}

// ObjectValue is an instance of a `define object` template (TypeName
// non-empty) or an anonymous record literal (TypeName == ""). Methods
// are looked up by TypeName in the evaluator's per-type method table,
// not stored per instance.
type ObjectValue struct {
	heapHeader
	TypeName string
	Fields   map[string]Value
	order    []string // preserves declaration/insertion order for Inspect
}

func NewObjectValue(typeName string) *ObjectValue {
	return &ObjectValue{TypeName: typeName, Fields: make(map[string]Value)}
}

func (n *ObjectValue) Tag() TypeTag               { return TagObject }
func (n *ObjectValue) Accept(v ValueVisitor) error { return v.VisitObjectValue(n) }

func (n *ObjectValue) Set(name string, val Value) {
	if _, exists := n.Fields[name]; !exists {
		n.order = append(n.order, name)
	}
	n.Fields[name] = val
}

func (n *ObjectValue) Get(name string) (Value, bool) {
	val, ok := n.Fields[name]
	return val, ok
}

func (n *ObjectValue) Inspect() string {
	var b strings.Builder
	if n.TypeName != "" {
		b.WriteString(n.TypeName)
		b.WriteByte(' ')
	}
	b.WriteByte('{')
	for i, name := range n.order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(n.Fields[name].Inspect())
	}
	b.WriteByte('}')
	return b.String()
}

type FileValue struct {
	heapHeader
	Handle *os.File
	Path   string
	Closed bool
}

func NewFileValue(handle *os.File, path string) *FileValue {
	return &FileValue{Handle: handle, Path: path}
}

func (n *FileValue) Tag() TypeTag { return TagFile }
func (n *FileValue) Inspect() string {
	if n.Closed {
		return fmt.Sprintf("file(%q, closed)", n.Path)
	}
	return fmt.Sprintf("file(%q)", n.Path)
}
func (n *FileValue) Accept(v ValueVisitor) error { return v.VisitFileValue(n) }

// FunctionValue is a Hemlock closure: a declaration plus the
// environment it captured. Receiver is set for bound methods (spec
// §4.2/§4.5's "self" rule) and nil for free functions.
type FunctionValue struct {
	heapHeader
	Name     string
	Params   []Param
	RetType  TypeTag
	Body     *BlockStmt
	Closure  *Environment
	Receiver Value
	IsAsync  bool
}

func NewFunctionValue(name string, params []Param, retType TypeTag, body *BlockStmt, closure *Environment) *FunctionValue {
	return &FunctionValue{Name: name, Params: params, RetType: retType, Body: body, Closure: closure}
}

func (n *FunctionValue) Tag() TypeTag { return TagFunction }
func (n *FunctionValue) Inspect() string {
	if n.Name == "" {
		return "<fn>"
	}
	return fmt.Sprintf("<fn %s>", n.Name)
}
func (n *FunctionValue) Accept(v ValueVisitor) error { return v.VisitFunctionValue(n) }

// BuiltinFunc is the Go-side implementation behind a BuiltinFnValue.
type BuiltinFunc func(ev *Evaluator, args []Value, span Span) (Value, error)

type BuiltinFnValue struct {
	heapHeader
	Name string
	Fn   BuiltinFunc
}

func NewBuiltinFnValue(name string, fn BuiltinFunc) *BuiltinFnValue {
	return &BuiltinFnValue{Name: name, Fn: fn}
}

func (n *BuiltinFnValue) Tag() TypeTag               { return TagBuiltinFn }
func (n *BuiltinFnValue) Inspect() string            { return fmt.Sprintf("<builtin %s>", n.Name) }
func (n *BuiltinFnValue) Accept(v ValueVisitor) error { return v.VisitBuiltinFnValue(n) }

// FFIFunctionValue is produced by resolving an `extern fn` declaration
// against a loaded native library; its native trampoline is bound
// lazily by ffi.go once purego resolves the symbol.
type FFIFunctionValue struct {
	heapHeader
	Name       string
	Library    string
	Symbol     string
	ParamTypes []TypeTag
	RetType    TypeTag
	call       func(args []Value) (Value, error)
}

func NewFFIFunctionValue(name, library, symbol string, paramTypes []TypeTag, retType TypeTag) *FFIFunctionValue {
	return &FFIFunctionValue{Name: name, Library: library, Symbol: symbol, ParamTypes: paramTypes, RetType: retType}
}

func (n *FFIFunctionValue) Tag() TypeTag { return TagFFIFunction }
func (n *FFIFunctionValue) Inspect() string {
	return fmt.Sprintf("<extern fn %s from %q>", n.Name, n.Library)
}
func (n *FFIFunctionValue) Accept(v ValueVisitor) error { return v.VisitFFIFunctionValue(n) }

// ---- helpers shared by the evaluator ----

// IsTruthy implements Hemlock's truthiness rule: null and false are
// falsy, every other value (including 0 and "") is truthy.
func IsTruthy(v Value) bool {
	switch n := v.(type) {
	case *NullValue:
		return false
	case *BoolValue:
		return n.Val
	default:
		return true
	}
}

// ValuesEqual implements `==` for scalar and heap values. Heap values
// compare by content for string/buffer and by identity otherwise.
func ValuesEqual(a, b Value) bool {
	if a.Tag() != b.Tag() {
		return false
	}
	switch av := a.(type) {
	case *IntValue:
		return av.Val == b.(*IntValue).Val
	case *UintValue:
		return av.Val == b.(*UintValue).Val
	case *FloatValue:
		return av.Val == b.(*FloatValue).Val
	case *BoolValue:
		return av.Val == b.(*BoolValue).Val
	case *RuneValue:
		return av.Val == b.(*RuneValue).Val
	case *NullValue:
		return true
	case *PtrValue:
		return av.Addr == b.(*PtrValue).Addr
	case *TypeTagValue:
		return av.Val == b.(*TypeTagValue).Val
	case *StringValue:
		return av.Val == b.(*StringValue).Val
	case *BufferValue:
		bv := b.(*BufferValue)
		if len(av.Data) != len(bv.Data) {
			return false
		}
		for i := range av.Data {
			if av.Data[i] != bv.Data[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
