package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestLayers(t *testing.T) {
	cases := []struct {
		layer Layer
		in    string
		want  bool
	}{
		{VectorAPI, "pintfoam/pkg/vector", true},
		{VectorAPI, "pintfoam/pkg", true},
		{VectorAPI, "pintfoam/pkgx", false},
		{VectorAPI, "github.com/other/pkg/vector", false},
		{StorageDrivers, "pintfoam/internal/infra/archive/s3", true},
		{StorageDrivers, "pintfoam/internal/infra/catalog/sqlite", true},
		{StorageDrivers, "pintfoam/internal/archive", false},
		{StorageDrivers, "pintfoam/internal/infrastructure", false},
		{StorageDrivers, "", false},
	}
	for _, c := range cases {
		if got := c.layer(c.in); got != c.want {
			t.Fatalf("layer(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestImportsOf(t *testing.T) {
	dir := t.TempDir()
	src := "package tmp\nimport (\n\t\"fmt\"\n\t\"pintfoam/pkg/vector\"\n)\nvar _ = fmt.Sprint\nvar _ vector.Vector\n"
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), []byte("package tmp\nimport \"pintfoam/internal/infra/archive/fs\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	found, err := importsOf(dir, VectorAPI)
	if err != nil {
		t.Fatalf("importsOf: %v", err)
	}
	if !reflect.DeepEqual(found, []string{"x.go: pintfoam/pkg/vector"}) {
		t.Fatalf("unexpected imports %v", found)
	}
	if found, _ := importsOf(dir, StorageDrivers); len(found) != 0 {
		t.Fatalf("test files must be ignored, got %v", found)
	}
	if _, err := importsOf(filepath.Join(dir, "missing"), VectorAPI); err == nil {
		t.Fatalf("expected missing dir error")
	}
	AssertNoDirectImports(t, dir, StorageDrivers, "none")
}

func TestReachable(t *testing.T) {
	s3 := &packages.Package{PkgPath: "pintfoam/internal/infra/archive/s3"}
	facade := &packages.Package{PkgPath: "pintfoam/internal/archive", Imports: map[string]*packages.Package{s3.PkgPath: s3}}
	fs := &packages.Package{PkgPath: "pintfoam/internal/infra/archive/fs"}
	root := &packages.Package{PkgPath: "pintfoam/cmd/pintfoam", Imports: map[string]*packages.Package{
		facade.PkgPath: facade,
		fs.PkgPath:     fs,
	}}
	got := reachable([]*packages.Package{root}, StorageDrivers)
	want := []string{"pintfoam/internal/infra/archive/fs", "pintfoam/internal/infra/archive/s3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got := reachable([]*packages.Package{facade}, VectorAPI); len(got) != 0 {
		t.Fatalf("unexpected %v", got)
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestReport(t *testing.T) {
	r := &recordingFatal{}
	report(r, "imports", "layering", nil)
	if r.msg != "" {
		t.Fatalf("nothing found must not fail: %q", r.msg)
	}
	report(r, "dependencies", "layering", []string{"a", "b"})
	if !strings.Contains(r.msg, "forbidden dependencies (layering)") || !strings.Contains(r.msg, "a\nb") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}
