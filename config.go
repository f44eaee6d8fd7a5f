package hemlock

import (
	"fmt"
	"strings"
)

// configSections lists the subsystems RunConfig keys are namespaced
// under. A key's namespace is everything before its first dot, and
// every Set/Get call validates the path falls under one of these —
// "lexer.debug_lines" is legal, "lexr.debug_lines" panics immediately
// instead of silently creating a new, never-read setting.
var configSections = map[string]bool{
	"lexer":      true,
	"parser":     true,
	"serializer": true,
	"module":     true,
	"evaluator":  true,
}

// RunConfig is a typed settings bag threaded through the lexer, parser,
// serializer, loader and evaluator. A missing or mistyped key is a
// programming error, not a recoverable runtime condition, so getters
// and setters panic rather than return an error.
type RunConfig map[string]*cfgVal

// NewRunConfig creates a RunConfig primed with Hemlock's defaults.
func NewRunConfig() *RunConfig {
	m := make(RunConfig)
	m.SetBool("serializer.debug_lines", false)
	m.SetBool("serializer.compress", false)
	m.SetString("module.stdlib_dir", "")
	m.SetBool("evaluator.trace_calls", false)
	return &m
}

// section returns path's namespace (the segment before its first dot)
// and panics if path doesn't belong to one of configSections — this is
// the actual use the hierarchical `section.key` path structure is put
// to, rather than treating the dot as cosmetic.
func section(path string) string {
	sec, _, found := strings.Cut(path, ".")
	if !found || !configSections[sec] {
		panic(fmt.Sprintf("config: %q is not under a known section (lexer/parser/serializer/module/evaluator)", path))
	}
	return sec
}

// Section returns every key currently set under the given namespace,
// in no particular order (for example every serializer.* knob).
func (c *RunConfig) Section(name string) []string {
	var keys []string
	for k := range *c {
		if sec, _ := strings.Cut(k, "."); sec == name {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone returns an independent copy of c, so a spawned task or a
// bundler invocation can flip a setting (e.g. serializer.debug_lines
// for one compile) without mutating the config its caller still holds.
func (c *RunConfig) Clone() *RunConfig {
	out := make(RunConfig, len(*c))
	for k, v := range *c {
		cp := *v
		out[k] = &cp
	}
	return &out
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
	cfgValType_String
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
		cfgValType_String:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValType_Undefined {
		panic(fmt.Sprintf("can't assign `%s` to type `%s`", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("can't retrieve `%s` from `%s` variable", vt, v.typ))
	}
}

func (c *RunConfig) SetBool(path string, v bool) {
	section(path)
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Bool)
	(*c)[path].asBool = v
}

func (c *RunConfig) SetInt(path string, v int) {
	section(path)
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Int)
	(*c)[path].asInt = v
}

func (c *RunConfig) SetString(path string, v string) {
	section(path)
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_String)
	(*c)[path].asString = v
}

func (c *RunConfig) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	section(path)
	panic(fmt.Sprintf("bool setting `%s` does not exist", path))
}

func (c *RunConfig) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	section(path)
	panic(fmt.Sprintf("int setting `%s` does not exist", path))
}

func (c *RunConfig) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_String)
		return val.asString
	}
	section(path)
	panic(fmt.Sprintf("string setting `%s` does not exist", path))
}
