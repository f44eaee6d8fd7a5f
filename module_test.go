package hemlock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileModuleLoaderResolveRelative(t *testing.T) {
	loader := NewFileModuleLoader("")
	path, err := loader.Resolve("./util.hml", "/app/main.hml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/app", "util.hml"), path)
}

func TestFileModuleLoaderResolveAbsolute(t *testing.T) {
	loader := NewFileModuleLoader("")
	path, err := loader.Resolve("/abs/mod.hml", "/app/main.hml")
	require.NoError(t, err)
	assert.Equal(t, "/abs/mod.hml", path)
}

func TestFileModuleLoaderResolveStdlib(t *testing.T) {
	loader := NewFileModuleLoader("/usr/share/hemlock/stdlib")
	path, err := loader.Resolve("@stdlib/strings.hml", "/app/main.hml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/usr/share/hemlock/stdlib", "strings.hml"), path)
}

func TestFileModuleLoaderResolveStdlibWithoutDirErrors(t *testing.T) {
	loader := NewFileModuleLoader("")
	_, err := loader.Resolve("@stdlib/strings.hml", "/app/main.hml")
	require.Error(t, err)
}

func TestFileModuleLoaderRejectsBareImportPath(t *testing.T) {
	loader := NewFileModuleLoader("")
	_, err := loader.Resolve("bare", "/app/main.hml")
	require.Error(t, err)
}

func TestInMemoryModuleLoaderLoadMissingErrors(t *testing.T) {
	loader := NewInMemoryModuleLoader()
	_, err := loader.Load("/missing.hml")
	require.Error(t, err)
}

func newTestModuleEvaluator() (*Evaluator, *ModuleCache) {
	ev := NewEvaluator(NewRunConfig())
	mc := NewModuleCache(ev)
	ev.modules = mc
	return ev, mc
}

func TestModuleImportNamedBindsAliasedValues(t *testing.T) {
	ev, mc := newTestModuleEvaluator()
	loader := NewInMemoryModuleLoader()
	loader.Add("/math.hml", []byte(`export let pi = 3
export fn square(n) { return n * n }`))
	mc.Loader = loader
	ev.currentFile = "/main.hml"

	stmt := &ImportStmt{
		Kind: ImportNamed,
		Path: "/math.hml",
		Names: []ImportSpec{
			{Name: "pi", Alias: "pi"},
			{Name: "square", Alias: "sq"},
		},
	}
	require.NoError(t, mc.Import(ev, stmt))

	v, ok := ev.env.Get("pi")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.(*IntValue).Val)

	fnVal, ok := ev.env.Get("sq")
	require.True(t, ok)
	assert.IsType(t, &FunctionValue{}, fnVal)
}

func TestModuleImportNamespaceSnapshotsExports(t *testing.T) {
	ev, mc := newTestModuleEvaluator()
	loader := NewInMemoryModuleLoader()
	loader.Add("/math.hml", []byte(`export let pi = 3`))
	mc.Loader = loader
	ev.currentFile = "/main.hml"

	stmt := &ImportStmt{Kind: ImportNamespace, Path: "/math.hml", Alias: "math"}
	require.NoError(t, mc.Import(ev, stmt))

	v, ok := ev.env.Get("math")
	require.True(t, ok)
	ns := v.(*ObjectValue)
	pi, ok := ns.Get("pi")
	require.True(t, ok)
	assert.Equal(t, int64(3), pi.(*IntValue).Val)
}

func TestModuleImportSideEffectOnlyRunsOnce(t *testing.T) {
	ev, mc := newTestModuleEvaluator()
	loader := NewInMemoryModuleLoader()
	loader.Add("/once.hml", []byte(`let x = 1`))
	mc.Loader = loader
	ev.currentFile = "/main.hml"

	stmt := &ImportStmt{Kind: ImportSideEffect, Path: "/once.hml"}
	require.NoError(t, mc.Import(ev, stmt))
	require.NoError(t, mc.Import(ev, stmt))

	mc.mu.Lock()
	n := len(mc.modules)
	mc.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestModuleImportMissingNameBindsNull(t *testing.T) {
	ev, mc := newTestModuleEvaluator()
	loader := NewInMemoryModuleLoader()
	loader.Add("/math.hml", []byte(`export let pi = 3`))
	mc.Loader = loader
	ev.currentFile = "/main.hml"

	stmt := &ImportStmt{Kind: ImportNamed, Path: "/math.hml", Names: []ImportSpec{{Name: "missing", Alias: "missing"}}}
	require.NoError(t, mc.Import(ev, stmt))

	v, ok := ev.env.Get("missing")
	require.True(t, ok)
	assert.IsType(t, &NullValue{}, v)
}

func TestModuleImportUnresolvablePathErrors(t *testing.T) {
	ev, mc := newTestModuleEvaluator()
	mc.Loader = NewInMemoryModuleLoader()
	ev.currentFile = "/main.hml"

	stmt := &ImportStmt{Kind: ImportSideEffect, Path: "not-a-real-module"}
	err := mc.Import(ev, stmt)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, ErrModuleNotFound, rerr.Kind)
}

func TestModuleExportFromReexportsTransitively(t *testing.T) {
	ev, mc := newTestModuleEvaluator()
	loader := NewInMemoryModuleLoader()
	loader.Add("/base.hml", []byte(`export let value = 42`))
	loader.Add("/proxy.hml", []byte(`export { value } from "./base.hml"`))
	mc.Loader = loader
	ev.currentFile = "/main.hml"

	stmt := &ImportStmt{Kind: ImportNamed, Path: "/proxy.hml", Names: []ImportSpec{{Name: "value", Alias: "value"}}}
	require.NoError(t, mc.Import(ev, stmt))

	v, ok := ev.env.Get("value")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.(*IntValue).Val)
}

func TestModuleCyclicImportSeesPartialExports(t *testing.T) {
	ev, mc := newTestModuleEvaluator()
	loader := NewInMemoryModuleLoader()
	loader.Add("/a.hml", []byte(`
import { b } from "./b.hml"
export let a = 1`))
	loader.Add("/b.hml", []byte(`
import { a } from "./a.hml"
export let b = 2`))
	mc.Loader = loader
	ev.currentFile = "/main.hml"

	stmt := &ImportStmt{Kind: ImportNamed, Path: "/a.hml", Names: []ImportSpec{{Name: "a", Alias: "a"}}}
	require.NoError(t, mc.Import(ev, stmt))

	v, ok := ev.env.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.(*IntValue).Val)
}
