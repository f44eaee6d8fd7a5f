package hemlock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentDefineAndGet(t *testing.T) {
	env := NewEnvironment(nil)
	env.Define("x", NewIntValue(TagI64, 5), false)
	v, ok := env.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(5), v.(*IntValue).Val)
}

func TestEnvironmentWalksParentChain(t *testing.T) {
	outer := NewEnvironment(nil)
	outer.Define("x", NewIntValue(TagI64, 1), false)
	inner := NewEnvironment(outer)

	v, ok := inner.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.(*IntValue).Val)

	_, ok = inner.Get("missing")
	assert.False(t, ok)
}

func TestEnvironmentShadowing(t *testing.T) {
	outer := NewEnvironment(nil)
	outer.Define("x", NewIntValue(TagI64, 1), false)
	inner := NewEnvironment(outer)
	inner.Define("x", NewIntValue(TagI64, 2), false)

	v, _ := inner.Get("x")
	assert.Equal(t, int64(2), v.(*IntValue).Val)

	v, _ = outer.Get("x")
	assert.Equal(t, int64(1), v.(*IntValue).Val)
}

func TestEnvironmentSetRejectsConst(t *testing.T) {
	env := NewEnvironment(nil)
	env.Define("x", NewIntValue(TagI64, 1), true)
	err := env.Set("x", NewIntValue(TagI64, 2))
	require.Error(t, err)
}

func TestEnvironmentSetRejectsUndeclared(t *testing.T) {
	env := NewEnvironment(nil)
	err := env.Set("nope", NewIntValue(TagI64, 1))
	require.Error(t, err)
}

func TestEnvironmentSetWalksToParentBinding(t *testing.T) {
	outer := NewEnvironment(nil)
	outer.Define("x", NewIntValue(TagI64, 1), false)
	inner := NewEnvironment(outer)

	require.NoError(t, inner.Set("x", NewIntValue(TagI64, 9)))
	v, _ := outer.Get("x")
	assert.Equal(t, int64(9), v.(*IntValue).Val)
}

func TestBreakCyclesClearsSelfReferentialArray(t *testing.T) {
	env := NewEnvironment(nil)
	arr := NewArrayValue(nil)
	arr.Elems = append(arr.Elems, arr)
	env.Define("a", arr, false)

	env.BreakCycles()
	assert.IsType(t, &NullValue{}, arr.Elems[0])
}
