// Package testutil provides test helpers: generated OpenFOAM cases and
// layering checks run from package tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Layer matches the import paths of one layer of the module.
type Layer func(importPath string) bool

var (
	// VectorAPI is the public vector package tree.
	VectorAPI = under("pintfoam/pkg")
	// StorageDrivers are the archive and catalog drivers. Only the facade
	// packages pick one.
	StorageDrivers = under("pintfoam/internal/infra")
)

func under(prefix string) Layer {
	return func(p string) bool { return hasPathPrefix(p, prefix) }
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// AssertNoDirectImports fails when a non-test Go file in dir imports a path
// of layer. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, layer Layer, reason string) {
	t.Helper()
	found, err := importsOf(dir, layer)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "imports", reason, found)
}

// AssertUnreachable loads pattern with its dependency graph and fails when
// any package of layer is reachable from it.
func AssertUnreachable(t testing.TB, pattern string, layer Layer, reason string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	report(t, "dependencies", reason, reachable(roots, layer))
}

func importsOf(dir string, layer Layer) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var found []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			if p := strings.Trim(imp.Path.Value, `"`); layer(p) {
				found = append(found, name+": "+p)
			}
		}
	}
	return found, nil
}

// reachable walks the import graph below roots and returns the sorted paths
// that belong to layer.
func reachable(roots []*packages.Package, layer Layer) []string {
	var found []string
	packages.Visit(roots, nil, func(p *packages.Package) {
		if layer(p.PkgPath) {
			found = append(found, p.PkgPath)
		}
	})
	sort.Strings(found)
	return found
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func report(t fatalf, what, reason string, found []string) {
	if len(found) > 0 {
		t.Fatalf("forbidden %s (%s):\n%s", what, reason, strings.Join(found, "\n"))
	}
}
