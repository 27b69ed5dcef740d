package testutil

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// AssertOnlyFacadeImports loads every package of the module (tests included)
// and fails when a package outside facade or infra imports infra directly.
// Callers depend on the facade's Store/Catalog interfaces instead.
func AssertOnlyFacadeImports(t testing.TB, facade, infra string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "pintfoam/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if hasPathPrefix(pkg.PkgPath, facade) || hasPathPrefix(pkg.PkgPath, infra) {
			continue
		}
		for importPath := range pkg.Imports {
			if hasPathPrefix(importPath, infra) {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return
	}
	violations := make([]string, 0, len(seen))
	for v := range seen {
		violations = append(violations, v)
	}
	sort.Strings(violations)
	t.Fatalf("forbidden imports of %s outside %s:\n%s", infra, facade, strings.Join(violations, "\n"))
}
