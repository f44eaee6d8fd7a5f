package hemlock

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator() (*Evaluator, *bytes.Buffer) {
	ev := NewEvaluator(NewRunConfig())
	var buf bytes.Buffer
	ev.stdout = &buf
	return ev, &buf
}

func TestBuiltinPrintJoinsArgsWithSpace(t *testing.T) {
	ev, out := newTestEvaluator()
	_, err := builtinPrint(ev, []Value{NewStringValue("a"), NewIntValue(TagI64, 1)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, "a 1\n", out.String())
}

func TestBuiltinTypeofAndSizeof(t *testing.T) {
	ev, _ := newTestEvaluator()
	v, err := builtinTypeof(ev, []Value{NewIntValue(TagI64, 1)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, TagI64, v.(*TypeTagValue).Val)

	v, err = builtinSizeof(ev, []Value{NewIntValue(TagU8, 1)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.(*IntValue).Val)

	v, err = builtinSizeof(ev, []Value{NewTypeTagValue(TagF64)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(8), v.(*IntValue).Val)
}

func TestBuiltinAssertThrowsOnFalsy(t *testing.T) {
	ev, _ := newTestEvaluator()
	_, err := builtinAssert(ev, []Value{NewBoolValue(false), NewStringValue("nope")}, Span{})
	require.Error(t, err)
	thrown, ok := err.(*ThrownValue)
	require.True(t, ok)
	assert.Equal(t, "nope", thrown.Value.(*StringValue).Val)

	_, err = builtinAssert(ev, []Value{NewBoolValue(true)}, Span{})
	assert.NoError(t, err)
}

func TestBuiltinPanicThrowsGivenOrDefaultValue(t *testing.T) {
	ev, _ := newTestEvaluator()
	_, err := builtinPanic(ev, nil, Span{})
	thrown, ok := err.(*ThrownValue)
	require.True(t, ok)
	assert.Equal(t, "panic", thrown.Value.(*StringValue).Val)

	_, err = builtinPanic(ev, []Value{NewIntValue(TagI64, 7)}, Span{})
	thrown, ok = err.(*ThrownValue)
	require.True(t, ok)
	assert.Equal(t, int64(7), thrown.Value.(*IntValue).Val)
}

func TestBuiltinAllocFreeRealloc(t *testing.T) {
	ev, _ := newTestEvaluator()
	p, err := builtinAlloc(ev, []Value{NewIntValue(TagI64, 4)}, Span{})
	require.NoError(t, err)
	assert.IsType(t, &PtrValue{}, p)

	_, err = builtinFree(ev, []Value{p}, Span{})
	require.NoError(t, err)

	buf := NewBufferValue(2)
	grown, err := builtinRealloc(ev, []Value{buf, NewIntValue(TagI64, 5)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, 5, len(grown.(*BufferValue).Data))
}

func TestBuiltinMemsetAndMemcpy(t *testing.T) {
	ev, _ := newTestEvaluator()
	buf := NewBufferValue(3)
	_, err := builtinMemset(ev, []Value{buf, NewIntValue(TagI64, 7)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7, 7}, buf.Data)

	dst := NewBufferValue(3)
	n, err := builtinMemcpy(ev, []Value{dst, buf}, Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.(*IntValue).Val)
	assert.Equal(t, []byte{7, 7, 7}, dst.Data)
}

func TestBuiltinBufferToPtrAndPtrReadWrite(t *testing.T) {
	ev, _ := newTestEvaluator()
	buf := NewBufferValue(2)
	p, err := builtinBufferToPtr(ev, []Value{buf}, Span{})
	require.NoError(t, err)
	ptr := p.(*PtrValue)

	_, err = builtinPtrWriteU8(ev, []Value{ptr, NewIntValue(TagI64, 0), NewIntValue(TagI64, 200)}, Span{})
	require.NoError(t, err)

	v, err := builtinPtrReadU8(ev, []Value{ptr, NewIntValue(TagI64, 0)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(200), v.(*IntValue).Val)
	assert.Equal(t, byte(200), buf.Data[0])
}

func TestBuiltinChannelDefaultsToZeroCapacity(t *testing.T) {
	ev, _ := newTestEvaluator()
	v, err := builtinChannel(ev, nil, Span{})
	require.NoError(t, err)
	ch := v.(*ChannelValue)
	assert.Equal(t, 0, ch.cap)

	v, err = builtinChannel(ev, []Value{NewIntValue(TagI64, 4)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, 4, v.(*ChannelValue).cap)
}

func TestBuiltinSpawnJoinDetach(t *testing.T) {
	ev, _ := newTestEvaluator()
	fn := NewFunctionValue("f", nil, TagI64, &BlockStmt{}, ev.Globals)

	v, err := builtinSpawn(ev, []Value{fn}, Span{})
	require.NoError(t, err)
	task := v.(*TaskValue)

	result, err := builtinJoin(ev, []Value{task}, Span{})
	require.NoError(t, err)
	assert.IsType(t, &NullValue{}, result)

	fn2 := NewFunctionValue("g", nil, TagI64, &BlockStmt{}, ev.Globals)
	v, err = builtinSpawn(ev, []Value{fn2}, Span{})
	require.NoError(t, err)
	_, err = builtinDetach(ev, []Value{v.(*TaskValue)}, Span{})
	require.NoError(t, err)
}

func TestBuiltinSpawnRejectsNonFunction(t *testing.T) {
	ev, _ := newTestEvaluator()
	_, err := builtinSpawn(ev, []Value{NewIntValue(TagI64, 1)}, Span{})
	require.Error(t, err)
}

func TestBuiltinSignalAndRaiseRoundTrip(t *testing.T) {
	ev, _ := newTestEvaluator()
	var fired bool
	handlerBody := &BlockStmt{}
	handler := NewFunctionValue("onInt", nil, TagNull, handlerBody, ev.Globals)

	_, err := builtinSignal(ev, []Value{NewStringValue("INT"), handler}, Span{})
	require.NoError(t, err)

	_, err = builtinRaise(ev, []Value{NewStringValue("INT")}, Span{})
	require.NoError(t, err)
	_ = fired
}

func TestBuiltinOpenWriteReadLineClose(t *testing.T) {
	ev, _ := newTestEvaluator()
	path := t.TempDir() + "/out.txt"

	f, err := builtinOpen(ev, []Value{NewStringValue(path), NewStringValue("w")}, Span{})
	require.NoError(t, err)

	_, err = builtinWrite(ev, []Value{f, NewStringValue("hello\n")}, Span{})
	require.NoError(t, err)

	_, err = builtinClose(ev, []Value{f}, Span{})
	require.NoError(t, err)

	rf, err := builtinOpen(ev, []Value{NewStringValue(path)}, Span{})
	require.NoError(t, err)

	line, err := builtinReadLine(ev, []Value{rf}, Span{})
	require.NoError(t, err)
	assert.Equal(t, "hello", line.(*StringValue).Val)
}

func TestBuiltinWriteOnClosedFileErrors(t *testing.T) {
	ev, _ := newTestEvaluator()
	path := t.TempDir() + "/out.txt"
	f, err := builtinOpen(ev, []Value{NewStringValue(path), NewStringValue("w")}, Span{})
	require.NoError(t, err)
	_, err = builtinClose(ev, []Value{f}, Span{})
	require.NoError(t, err)

	_, err = builtinWrite(ev, []Value{f, NewStringValue("x")}, Span{})
	require.Error(t, err)
}

func TestBuiltinExecReturnsCombinedOutput(t *testing.T) {
	ev, _ := newTestEvaluator()
	v, err := builtinExec(ev, []Value{NewStringValue("echo"), NewStringValue("hi")}, Span{})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", v.(*StringValue).Val)
}

func TestBuiltinMathFunctions(t *testing.T) {
	ev, _ := newTestEvaluator()

	v, err := builtinAbs(ev, []Value{NewIntValue(TagI64, -5)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.(*IntValue).Val)

	v, err = builtinSqrt(ev, []Value{NewFloatValue(TagF64, 9)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.(*FloatValue).Val)

	v, err = builtinFloor(ev, []Value{NewFloatValue(TagF64, 1.9)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.(*FloatValue).Val)

	v, err = builtinCeil(ev, []Value{NewFloatValue(TagF64, 1.1)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.(*FloatValue).Val)

	v, err = builtinPow(ev, []Value{NewFloatValue(TagF64, 2), NewFloatValue(TagF64, 10)}, Span{})
	require.NoError(t, err)
	assert.Equal(t, 1024.0, v.(*FloatValue).Val)
}

func TestBuiltinMathRejectsNonNumeric(t *testing.T) {
	ev, _ := newTestEvaluator()
	_, err := builtinSqrt(ev, []Value{NewStringValue("x")}, Span{})
	require.Error(t, err)
}

func TestRegisterBuiltinsDefinesEveryName(t *testing.T) {
	ev, _ := newTestEvaluator()
	for _, name := range []string{
		"print", "println", "typeof", "sizeof", "assert", "panic",
		"alloc", "free", "realloc", "memset", "memcpy", "buffer",
		"buffer_to_ptr", "ptr_read_u8", "ptr_write_u8",
		"channel", "spawn", "join", "detach", "signal", "raise",
		"open", "close", "read_line", "write", "exec",
		"abs", "sqrt", "floor", "ceil", "pow",
	} {
		v, ok := ev.Globals.Get(name)
		assert.True(t, ok, "missing builtin %q", name)
		assert.IsType(t, &BuiltinFnValue{}, v)
	}
}
