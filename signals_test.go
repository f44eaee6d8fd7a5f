package hemlock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalNameMapsKnownSignals(t *testing.T) {
	assert.Equal(t, "INT", signalName(namedSignals["INT"]))
	assert.Equal(t, "TERM", signalName(namedSignals["TERM"]))
}

func TestInstallSignalHandlerRegistersByName(t *testing.T) {
	ev, _ := newTestEvaluator()
	handler := NewFunctionValue("h", nil, TagNull, &BlockStmt{}, ev.Globals)

	ev.installSignalHandler("INT", handler)

	ev.signals.mu.Lock()
	got := ev.signals.handlers["INT"]
	ev.signals.mu.Unlock()
	assert.Same(t, handler, got)
}

func TestDispatchSignalRunsRegisteredHandler(t *testing.T) {
	ev, _ := newTestEvaluator()
	handler := NewFunctionValue("h", nil, TagNull, &BlockStmt{}, ev.Globals)
	ev.installSignalHandler("USR1", handler)

	v, err := ev.dispatchSignal("USR1", Span{})
	require.NoError(t, err)
	assert.IsType(t, &NullValue{}, v)
}

func TestDispatchSignalWithoutHandlerIsNoop(t *testing.T) {
	ev, _ := newTestEvaluator()
	v, err := ev.dispatchSignal("TERM", Span{})
	require.NoError(t, err)
	assert.IsType(t, &NullValue{}, v)
}

func TestDrainPendingSignalsRunsEachQueuedName(t *testing.T) {
	ev, _ := newTestEvaluator()
	handler := NewFunctionValue("h", nil, TagNull, &BlockStmt{}, ev.Globals)
	ev.installSignalHandler("HUP", handler)

	ev.pendingSignals.mu.Lock()
	ev.pendingSignals.names = append(ev.pendingSignals.names, "HUP", "HUP")
	ev.pendingSignals.mu.Unlock()

	require.NoError(t, ev.drainPendingSignals())

	ev.pendingSignals.mu.Lock()
	remaining := len(ev.pendingSignals.names)
	ev.pendingSignals.mu.Unlock()
	assert.Equal(t, 0, remaining)
}
