package hemlock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ModuleLoader resolves an import path against the module doing the
// importing and fetches its source bytes. Splitting resolution from
// the cache lets production runs use the filesystem loader while tests
// substitute an in-memory one without touching the cache's
// cycle/concurrency logic.
type ModuleLoader interface {
	Resolve(importPath, parentPath string) (string, error)
	Load(path string) ([]byte, error)
}

// FileModuleLoader resolves `@stdlib/...`, absolute, and `./`/`../`
// relative import paths against the filesystem.
type FileModuleLoader struct {
	StdlibDir string
}

func NewFileModuleLoader(stdlibDir string) *FileModuleLoader {
	return &FileModuleLoader{StdlibDir: stdlibDir}
}

func (l *FileModuleLoader) Resolve(importPath, parentPath string) (string, error) {
	switch {
	case strings.HasPrefix(importPath, "@stdlib/"):
		if l.StdlibDir == "" {
			return "", fmt.Errorf("no stdlib directory configured, cannot resolve %s", importPath)
		}
		return filepath.Join(l.StdlibDir, strings.TrimPrefix(importPath, "@stdlib/")), nil
	case filepath.IsAbs(importPath):
		return importPath, nil
	case strings.HasPrefix(importPath, "./") || strings.HasPrefix(importPath, "../"):
		return filepath.Join(filepath.Dir(parentPath), importPath), nil
	default:
		return "", fmt.Errorf("import path must be absolute, @stdlib/, or relative (./ ../): %s", importPath)
	}
}

func (l *FileModuleLoader) Load(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// InMemoryModuleLoader serves import content from a map, for tests and
// for bundling a set of modules that were never written to disk.
type InMemoryModuleLoader struct{ files map[string][]byte }

func NewInMemoryModuleLoader() *InMemoryModuleLoader {
	return &InMemoryModuleLoader{files: map[string][]byte{}}
}

func (l *InMemoryModuleLoader) Add(path string, content []byte) { l.files[path] = content }

func (l *InMemoryModuleLoader) Resolve(importPath, parentPath string) (string, error) {
	if strings.HasPrefix(importPath, "./") || strings.HasPrefix(importPath, "../") {
		return filepath.Join(filepath.Dir(parentPath), importPath), nil
	}
	return importPath, nil
}

func (l *InMemoryModuleLoader) Load(path string) ([]byte, error) {
	b, ok := l.files[path]
	if !ok {
		return nil, fmt.Errorf("import not found: %s", path)
	}
	return b, nil
}

type moduleState int

const (
	moduleUnloaded moduleState = iota
	moduleLoading
	moduleLoaded
)

// loadedModule is the cache's entry for one resolved path. exports is
// mutated while state is moduleLoading, so importers racing a cyclic
// dependency see whatever has been exported so far rather than
// blocking forever.
type loadedModule struct {
	path    string
	state   moduleState
	mu      sync.Mutex
	exports map[string]Value
	env     *Environment
	err     error
}

func (m *loadedModule) snapshotExports() map[string]Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Value, len(m.exports))
	for k, v := range m.exports {
		out[k] = v
	}
	return out
}

func (m *loadedModule) setExport(name string, val Value) {
	m.mu.Lock()
	m.exports[name] = val
	m.mu.Unlock()
}

// ModuleCache is the process-wide module table: every distinct
// resolved path loads and evaluates at most once. acquire enters the
// path in the table under mu before loading it, so any later importer of
// that path, concurrent or cyclic, gets the in-progress entry at once
// and sees the exports bound so far; the singleflight group therefore
// never receives a second call for the same path.
type ModuleCache struct {
	ev      *Evaluator
	Loader  ModuleLoader
	mu      sync.Mutex
	modules map[string]*loadedModule
	group   singleflight.Group
}

func NewModuleCache(ev *Evaluator) *ModuleCache {
	return &ModuleCache{
		ev:      ev,
		Loader:  NewFileModuleLoader(""),
		modules: make(map[string]*loadedModule),
	}
}

// Import executes the import statement against the evaluator's current
// module file, binding whatever names it introduces into ev.env.
func (mc *ModuleCache) Import(ev *Evaluator, stmt *ImportStmt) error {
	path, err := mc.Loader.Resolve(stmt.Path, ev.currentFile)
	if err != nil {
		return NewRuntimeError(ErrModuleNotFound, stmt.Sp, "%s", err.Error())
	}
	m, err := mc.acquire(path)
	if err != nil {
		return NewRuntimeError(ErrModuleNotFound, stmt.Sp, "%s", err.Error())
	}

	switch stmt.Kind {
	case ImportSideEffect:
		return nil
	case ImportNamed:
		exports := m.snapshotExports()
		for _, spec := range stmt.Names {
			val, ok := exports[spec.Name]
			if !ok {
				val = NewNullValue() // cyclic or missing export: visible as null, not a hard error
			}
			ev.env.Define(spec.Alias, val, true)
		}
		return nil
	case ImportNamespace:
		ns := NewObjectValue("")
		for name, val := range m.snapshotExports() {
			ns.Set(name, val)
		}
		ev.env.Define(stmt.Alias, ns, true)
		return nil
	}
	return nil
}

// acquire returns the cache entry for path, loading it at most once.
// A second import of a path already moduleLoading (the cyclic case)
// returns the in-progress entry immediately instead of deadlocking.
func (mc *ModuleCache) acquire(path string) (*loadedModule, error) {
	mc.mu.Lock()
	if m, ok := mc.modules[path]; ok {
		mc.mu.Unlock()
		return m, m.err
	}
	m := &loadedModule{path: path, state: moduleLoading, exports: make(map[string]Value)}
	mc.modules[path] = m
	mc.mu.Unlock()

	_, err, _ := mc.group.Do(path, func() (any, error) {
		return nil, mc.load(m)
	})
	return m, err
}

func (mc *ModuleCache) load(m *loadedModule) error {
	src, err := mc.Loader.Load(m.path)
	if err != nil {
		m.err = err
		m.state = moduleLoaded
		return err
	}
	parser := NewParser(src, m.path)
	mod, perrs := parser.Parse()
	if len(perrs) > 0 {
		m.err = &perrs[0]
		m.state = moduleLoaded
		return m.err
	}

	moduleEnv := NewEnvironment(mc.ev.Globals)
	savedEnv := mc.ev.env
	savedFile := mc.ev.currentFile
	mc.ev.env = moduleEnv
	mc.ev.currentFile = m.path
	defer func() {
		mc.ev.env = savedEnv
		mc.ev.currentFile = savedFile
	}()

	for _, stmt := range mod.Stmts {
		if err := stmt.Accept(mc.ev); err != nil {
			m.err = err
			m.state = moduleLoaded
			return err
		}
		if exp, ok := stmt.(*ExportStmt); ok {
			if err := mc.applyExport(m, exp, moduleEnv); err != nil {
				m.err = err
				m.state = moduleLoaded
				return err
			}
		}
	}
	m.env = moduleEnv
	m.state = moduleLoaded
	return nil
}

func (mc *ModuleCache) applyExport(m *loadedModule, exp *ExportStmt, env *Environment) error {
	switch exp.Kind {
	case ExportDecl:
		name := declName(exp.Decl)
		if name == "" {
			return nil
		}
		val, ok := env.Get(name)
		if !ok {
			return nil
		}
		m.setExport(name, val)
		return nil
	case ExportNames:
		for _, spec := range exp.Names {
			val, ok := env.Get(spec.Name)
			if !ok {
				return NewRuntimeError(ErrName, exp.Sp, "undefined name %q in export", spec.Name)
			}
			m.setExport(spec.Alias, val)
		}
		return nil
	case ExportFrom:
		path, err := mc.Loader.Resolve(exp.Path, m.path)
		if err != nil {
			return NewRuntimeError(ErrModuleNotFound, exp.Sp, "%s", err.Error())
		}
		src, err := mc.acquire(path)
		if err != nil {
			return err
		}
		exports := src.snapshotExports()
		for _, spec := range exp.Names {
			val, ok := exports[spec.Name]
			if !ok {
				val = NewNullValue()
			}
			m.setExport(spec.Alias, val)
		}
		return nil
	}
	return nil
}

func declName(s Stmt) string {
	switch d := s.(type) {
	case *LetStmt:
		return d.Name
	case *FnStmt:
		return d.Name
	}
	return ""
}
