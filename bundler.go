package hemlock

import (
	"fmt"
)

// bundleExport records, for one module path, the mapping from an
// exported name to the identifier that actually holds it once every
// module's statements have been flattened into a single global scope.
type bundleExport struct {
	alias string
	local string
}

// bundler walks the whole import graph reachable from an entry file
// and flattens it into a single statement sequence: every module is
// parsed and visited at most once (leaves first), import statements
// are dropped since their effects are inlined by the visit order, and
// `export` wrappers are stripped down to the plain declaration they
// wrap.
type bundler struct {
	loader  ModuleLoader
	visited map[string]bool
	exports map[string][]bundleExport
	out     []Stmt
}

// FlattenModules parses entryPath and every module it (transitively)
// imports, producing one Module whose Stmts run in the same order a
// non-bundled `import` chain would have executed them in.
func FlattenModules(entryPath string, loader ModuleLoader) (*Module, error) {
	b := &bundler{
		loader:  loader,
		visited: make(map[string]bool),
		exports: make(map[string][]bundleExport),
	}
	if err := b.visit(entryPath); err != nil {
		return nil, err
	}
	return &Module{File: entryPath, Stmts: b.out}, nil
}

func (b *bundler) visit(path string) error {
	if b.visited[path] {
		return nil
	}
	b.visited[path] = true

	src, err := b.loader.Load(path)
	if err != nil {
		return fmt.Errorf("bundle: %s: %w", path, err)
	}
	mod, perrs := NewParser(src, path).Parse()
	if len(perrs) > 0 {
		return perrs[0]
	}

	for _, stmt := range mod.Stmts {
		switch n := stmt.(type) {
		case *ImportStmt:
			if err := b.visitImport(path, n); err != nil {
				return err
			}
		case *ExportStmt:
			if err := b.visitExport(path, n); err != nil {
				return err
			}
		default:
			b.out = append(b.out, stmt)
		}
	}
	return nil
}

func (b *bundler) visitImport(parentPath string, n *ImportStmt) error {
	resolved, err := b.loader.Resolve(n.Path, parentPath)
	if err != nil {
		return fmt.Errorf("bundle: %s: %w", parentPath, err)
	}
	if err := b.visit(resolved); err != nil {
		return err
	}

	switch n.Kind {
	case ImportSideEffect:
		return nil
	case ImportNamed:
		locals := make(map[string]string, len(b.exports[resolved]))
		for _, exp := range b.exports[resolved] {
			locals[exp.alias] = exp.local
		}
		for _, spec := range n.Names {
			local, ok := locals[spec.Name]
			if !ok {
				local = spec.Name
			}
			if spec.Alias == local {
				continue
			}
			b.out = append(b.out, &LetStmt{
				Sp:    n.Sp,
				Name:  spec.Alias,
				Value: &IdentExpr{Sp: n.Sp, Name: local},
			})
		}
		return nil
	case ImportNamespace:
		fields := make([]ObjectFieldLit, 0, len(b.exports[resolved]))
		for _, exp := range b.exports[resolved] {
			fields = append(fields, ObjectFieldLit{
				Name:  exp.alias,
				Value: &IdentExpr{Sp: n.Sp, Name: exp.local},
			})
		}
		b.out = append(b.out, &LetStmt{
			Sp:    n.Sp,
			Name:  n.Alias,
			Value: &ObjectLit{Sp: n.Sp, Fields: fields},
		})
		return nil
	}
	return nil
}

func (b *bundler) visitExport(path string, n *ExportStmt) error {
	switch n.Kind {
	case ExportDecl:
		name := declName(n.Decl)
		b.out = append(b.out, n.Decl)
		if name != "" {
			b.exports[path] = append(b.exports[path], bundleExport{alias: name, local: name})
		}
		return nil
	case ExportNames:
		for _, spec := range n.Names {
			b.exports[path] = append(b.exports[path], bundleExport{alias: spec.Alias, local: spec.Name})
		}
		return nil
	case ExportFrom:
		resolved, err := b.loader.Resolve(n.Path, path)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", path, err)
		}
		if err := b.visit(resolved); err != nil {
			return err
		}
		srcExports := make(map[string]string, len(b.exports[resolved]))
		for _, exp := range b.exports[resolved] {
			srcExports[exp.alias] = exp.local
		}
		for _, spec := range n.Names {
			local, ok := srcExports[spec.Name]
			if !ok {
				local = spec.Name
			}
			b.exports[path] = append(b.exports[path], bundleExport{alias: spec.Alias, local: local})
		}
		return nil
	}
	return nil
}
