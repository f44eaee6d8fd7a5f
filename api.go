package hemlock

import (
	"encoding/binary"
	"fmt"
	"os"
)

// ParseSource parses a single file's bytes into a Module without
// resolving its imports, the building block both CompileFile and the
// bundler's per-file pass use.
func ParseSource(src []byte, file string) (*Module, []ParseError) {
	return NewParser(src, file).Parse()
}

// ParseFile reads path off disk and parses it.
func ParseFile(path string) (*Module, []ParseError) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []ParseError{{Message: err.Error()}}
	}
	return ParseSource(src, path)
}

// RunFile parses and evaluates path in a fresh Evaluator rooted at
// path's own directory for stdlib/relative import resolution. It only
// accepts `.hml` source; the CLI's `hemlock <file>` entry point uses
// RunAny instead.
func RunFile(path string, config *RunConfig) error {
	if config == nil {
		config = NewRunConfig()
	}
	mod, perrs := ParseFile(path)
	if len(perrs) > 0 {
		return firstParseError(perrs)
	}
	ev := NewEvaluator(config)
	ev.modules.Loader = NewFileModuleLoader(config.GetString("module.stdlib_dir"))
	return ev.Run(mod)
}

// isCompiledMagic reports whether data opens with the HMLC or HMLB
// magic bytes, the dispatch `hemlock <file>` uses to tell a compiled
// artifact from plain source.
func isCompiledMagic(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch binary.LittleEndian.Uint32(data[0:4]) {
	case hmlcMagic, hmlbMagic:
		return true
	}
	return false
}

// RunAny loads path off disk and, by sniffing its leading magic bytes,
// either decodes it as a compiled `.hmlc`/`.hmlb` module or parses it
// as `.hml` source, then evaluates whichever it found. This backs the
// CLI's `hemlock <file>` entry point, which accepts either kind.
func RunAny(path string, config *RunConfig) error {
	if config == nil {
		config = NewRunConfig()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ev := NewEvaluator(config)
	ev.modules.Loader = NewFileModuleLoader(config.GetString("module.stdlib_dir"))

	if isCompiledMagic(data) {
		mod, err := DecodeBundle(data)
		if err != nil {
			return err
		}
		mod.File = path
		return ev.Run(mod)
	}
	mod, perrs := ParseSource(data, path)
	if len(perrs) > 0 {
		return firstParseError(perrs)
	}
	return ev.Run(mod)
}

// RunSource parses and evaluates src as if it lived at file, used by
// `hemlock -c '<script>'` and by tests that don't want a real file.
func RunSource(src []byte, file string, config *RunConfig) error {
	if config == nil {
		config = NewRunConfig()
	}
	mod, perrs := ParseSource(src, file)
	if len(perrs) > 0 {
		return firstParseError(perrs)
	}
	ev := NewEvaluator(config)
	ev.modules.Loader = NewFileModuleLoader(config.GetString("module.stdlib_dir"))
	return ev.Run(mod)
}

// CompileFile parses path and serializes it to HMLC bytecode, honoring
// config's serializer.debug_lines flag for source-span retention.
func CompileFile(path string, config *RunConfig) ([]byte, error) {
	if config == nil {
		config = NewRunConfig()
	}
	mod, perrs := ParseFile(path)
	if len(perrs) > 0 {
		return nil, firstParseError(perrs)
	}
	return EncodeModule(mod, config.GetBool("serializer.debug_lines"))
}

// Bundle flattens path's whole import graph into one module and encodes
// it: as a zlib-compressed HMLB archive when config's serializer.compress
// flag is set, and as bare HMLC bytes otherwise.
// This backs the CLI's `--bundle`/`--compress` flags.
func Bundle(path string, config *RunConfig) ([]byte, error) {
	if config == nil {
		config = NewRunConfig()
	}
	loader := NewFileModuleLoader(config.GetString("module.stdlib_dir"))
	flat, err := FlattenModules(path, loader)
	if err != nil {
		return nil, err
	}
	return EncodeBundle(flat, config.GetBool("serializer.compress"), config.GetBool("serializer.debug_lines"))
}

func firstParseError(errs []ParseError) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("%s (and %d more parse error(s))", errs[0].Error(), len(errs)-1)
}

