package vector

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pintfoam/internal/field"
	"pintfoam/testutil"
)

func newBase(t *testing.T, specs []testutil.FieldSpec, opts ...Option) *BaseCase {
	t.Helper()
	root := t.TempDir()
	testutil.WriteCase(t, root, "baseCase", specs...)
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	b, err := NewBaseCase(root, "baseCase", names, opts...)
	if err != nil {
		t.Fatalf("NewBaseCase: %v", err)
	}
	return b
}

func scalarT(binary bool, vals ...float64) []testutil.FieldSpec {
	return []testutil.FieldSpec{{Name: "T", Width: 1, Values: vals, Binary: binary}}
}

func readField(t *testing.T, v Vector, name string) []float64 {
	t.Helper()
	var out []float64
	if err := v.WithReadField(name, func(m *field.Mapping) error {
		out = m.Values()
		return nil
	}); err != nil {
		t.Fatalf("read %s of %s: %v", name, v, err)
	}
	return out
}

func writeField(t *testing.T, v Vector, name string, vals []float64) {
	t.Helper()
	if err := v.WithMappedField(name, func(m *field.Mapping) error {
		return m.Assign(vals)
	}); err != nil {
		t.Fatalf("write %s of %s: %v", name, v, err)
	}
}

func assertClose(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("index %d: got %v want %v (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestNewBaseCaseMissing(t *testing.T) {
	_, err := NewBaseCase(t.TempDir(), "absent", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := NewBaseCase(t.TempDir(), "../up", nil); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestCloneIndependence(t *testing.T) {
	for _, binary := range []bool{false, true} {
		name := "ascii"
		if binary {
			name = "binary"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := newBase(t, scalarT(binary, 1, 2, 3))
			v, err := b.NewVector(ctx, "")
			if err != nil {
				t.Fatalf("NewVector: %v", err)
			}
			if len(v.Case) != 32 {
				t.Fatalf("expected 32 hex char id, got %q", v.Case)
			}
			c, err := v.Clone(ctx, "")
			if err != nil {
				t.Fatalf("Clone: %v", err)
			}
			if c.Time != v.Time || c.Case == v.Case {
				t.Fatalf("unexpected clone %s of %s", c, v)
			}
			if err := c.WithMappedField("T", func(m *field.Mapping) error {
				m.Set(0, 9)
				return nil
			}); err != nil {
				t.Fatalf("mutate clone: %v", err)
			}
			assertClose(t, readField(t, c, "T"), []float64{9, 2, 3}, 0)
			assertClose(t, readField(t, v, "T"), []float64{1, 2, 3}, 0)
			assertClose(t, readField(t, b.Vector(b.Name, "0"), "T"), []float64{1, 2, 3}, 0)
		})
	}
}

func TestCloneReplacesTargetSnapshot(t *testing.T) {
	ctx := context.Background()
	b := newBase(t, scalarT(false, 1, 2, 3))
	v, err := b.NewVector(ctx, "src")
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	target, err := b.NewVector(ctx, "dst")
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	stale := filepath.Join(target.Dirname(), "stale")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatalf("write stale: %v", err)
	}
	if _, err := v.Clone(ctx, "dst"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("clone must replace, not merge, the snapshot directory")
	}
	if _, err := v.Clone(ctx, "src"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected clone into own case to fail, got %v", err)
	}
}

func TestCloneKeepsTime(t *testing.T) {
	ctx := context.Background()
	b := newBase(t, scalarT(false, 1, 2, 3))
	v, err := b.NewVector(ctx, "run")
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	testutil.WriteField(t, filepath.Join(v.Path(), "0.5"), testutil.FieldSpec{Name: "T", Width: 1, Values: []float64{4, 5, 6}})
	later := b.Vector("run", "0.5")
	c, err := later.Clone(ctx, "")
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if c.Time != "0.5" {
		t.Fatalf("expected time 0.5, got %s", c.Time)
	}
	assertClose(t, readField(t, c, "T"), []float64{4, 5, 6}, 0)
}

func TestArithmeticScenario(t *testing.T) {
	for _, binary := range []bool{false, true} {
		t.Run(map[bool]string{false: "ascii", true: "binary"}[binary], func(t *testing.T) {
			ctx := context.Background()
			base := newBase(t, scalarT(binary, 1, 2, 3))
			a, err := base.NewVector(ctx, "a")
			if err != nil {
				t.Fatalf("NewVector a: %v", err)
			}
			b, err := base.NewVector(ctx, "b")
			if err != nil {
				t.Fatalf("NewVector b: %v", err)
			}
			writeField(t, b, "T", []float64{0.1, 0.2, 0.3})

			d, err := a.Sub(ctx, b)
			if err != nil {
				t.Fatalf("Sub: %v", err)
			}
			assertClose(t, readField(t, d, "T"), []float64{0.9, 1.8, 2.7}, 1e-6)
			if d.Time != a.Time {
				t.Fatalf("result must keep the left operand's time")
			}

			s, err := d.Add(ctx, b)
			if err != nil {
				t.Fatalf("Add: %v", err)
			}
			assertClose(t, readField(t, s, "T"), []float64{1, 2, 3}, 1e-6)

			assertClose(t, readField(t, a, "T"), []float64{1, 2, 3}, 0)
			assertClose(t, readField(t, b, "T"), []float64{0.1, 0.2, 0.3}, 0)
		})
	}
}

func TestScaleIdentityAndZero(t *testing.T) {
	ctx := context.Background()
	b := newBase(t, scalarT(true, -1.5, 2, 3.25))
	v, err := b.NewVector(ctx, "")
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	one, err := v.Scale(ctx, 1)
	if err != nil {
		t.Fatalf("Scale 1: %v", err)
	}
	assertClose(t, readField(t, one, "T"), []float64{-1.5, 2, 3.25}, 1e-12)
	zero, err := v.Map(ctx, func(x float64) float64 { return x * 0 })
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	assertClose(t, readField(t, zero, "T"), []float64{0, 0, 0}, 0)
}

func TestZipWithCoversEveryDeclaredField(t *testing.T) {
	ctx := context.Background()
	specs := []testutil.FieldSpec{
		{Name: "T", Width: 1, Values: []float64{1, 2}},
		{Name: "U", Width: 3, Values: []float64{1, 2, 3, 4, 5, 6}, Binary: true},
	}
	b := newBase(t, specs)
	v, err := b.NewVector(ctx, "")
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	undeclared := testutil.WriteField(t, v.Dirname(), testutil.FieldSpec{Name: "p", Width: 1, Values: []float64{7, 8}})
	before, err := os.ReadFile(undeclared)
	if err != nil {
		t.Fatalf("read p: %v", err)
	}

	r, err := v.ZipWith(ctx, v, func(a, b float64) float64 { return a * b })
	if err != nil {
		t.Fatalf("ZipWith: %v", err)
	}
	assertClose(t, readField(t, r, "T"), []float64{1, 4}, 0)
	assertClose(t, readField(t, r, "U"), []float64{1, 4, 9, 16, 25, 36}, 0)
	after, err := os.ReadFile(filepath.Join(r.Dirname(), "p"))
	if err != nil {
		t.Fatalf("read cloned p: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("undeclared field must not be touched")
	}
	if !reflect.DeepEqual(r.Fields(), v.Fields()) {
		t.Fatalf("field set changed: %v", r.Fields())
	}
}

func TestZipWithFieldMismatch(t *testing.T) {
	ctx := context.Background()
	b1 := newBase(t, scalarT(false, 1, 2, 3))
	specs := []testutil.FieldSpec{
		{Name: "T", Width: 1, Values: []float64{1, 2, 3}},
		{Name: "p", Width: 1, Values: []float64{1, 2, 3}},
	}
	b2 := newBase(t, specs)
	v1, _ := b1.NewVector(ctx, "x")
	v2, _ := b2.NewVector(ctx, "y")
	if _, err := v1.Add(ctx, v2); !errors.Is(err, ErrFieldMismatch) {
		t.Fatalf("expected ErrFieldMismatch, got %v", err)
	}
	paths, _ := b1.VectorPaths()
	if len(paths) != 1 {
		t.Fatalf("field set check must happen before cloning, found %v", paths)
	}

	b3 := newBase(t, scalarT(false, 1, 2))
	v3, _ := b3.NewVector(ctx, "z")
	if _, err := v1.Sub(ctx, v3); !errors.Is(err, ErrFieldMismatch) {
		t.Fatalf("expected ErrFieldMismatch for size mismatch, got %v", err)
	}
}

func TestAxpyAndNorms(t *testing.T) {
	ctx := context.Background()
	b := newBase(t, scalarT(true, 1, -2, 3))
	v, _ := b.NewVector(ctx, "v")
	x, _ := b.NewVector(ctx, "x")
	writeField(t, x, "T", []float64{1, 1, 1})
	r, err := v.Axpy(ctx, 0.5, x)
	if err != nil {
		t.Fatalf("Axpy: %v", err)
	}
	assertClose(t, readField(t, r, "T"), []float64{1.5, -1.5, 3.5}, 1e-12)
	maxAbs, meanAbs, err := v.Norms("T")
	if err != nil {
		t.Fatalf("Norms: %v", err)
	}
	if maxAbs != 3 || meanAbs != 2 {
		t.Fatalf("unexpected norms %v %v", maxAbs, meanAbs)
	}
}

func TestNewVectorIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newBase(t, scalarT(false, 1, 2, 3))
	v1, err := b.NewVector(ctx, "fixed-id")
	if err != nil {
		t.Fatalf("first NewVector: %v", err)
	}
	writeField(t, v1, "T", []float64{5, 5, 5})
	v2, err := b.NewVector(ctx, "fixed-id")
	if err != nil {
		t.Fatalf("second NewVector: %v", err)
	}
	if v1 != v2 {
		t.Fatalf("expected equal vectors, got %v and %v", v1, v2)
	}
	assertClose(t, readField(t, v2, "T"), []float64{5, 5, 5}, 0)
	if _, err := b.NewVector(ctx, b.Name); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected base case name to be rejected, got %v", err)
	}
}

func TestAllTimesNumericOrder(t *testing.T) {
	ctx := context.Background()
	b := newBase(t, scalarT(false, 1))
	v, _ := b.NewVector(ctx, "")
	for _, dir := range []string{"10", "2", "0.5", "constant-extra"} {
		if err := os.MkdirAll(filepath.Join(v.Path(), dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	all, err := v.AllTimes()
	if err != nil {
		t.Fatalf("AllTimes: %v", err)
	}
	var times []string
	for _, x := range all {
		if x.Case != v.Case || x.Base != b {
			t.Fatalf("AllTimes must share base and case")
		}
		times = append(times, x.Time)
	}
	if !reflect.DeepEqual(times, []string{"0", "0.5", "2", "10"}) {
		t.Fatalf("unexpected order %v", times)
	}
	latest, err := v.Latest()
	if err != nil || latest.Time != "10" {
		t.Fatalf("Latest: %v %v", latest, err)
	}
}

func TestUnknownFieldBeforeFilesystem(t *testing.T) {
	b := newBase(t, scalarT(false, 1))
	v := b.Vector("never-created", "42")
	called := false
	err := v.WithMappedField("nope", func(*field.Mapping) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if called {
		t.Fatalf("callback must not run")
	}
	if _, _, err := v.Norms("nope"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField from Norms, got %v", err)
	}
	if err := v.WithMappedField("T", func(*field.Mapping) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing snapshot, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	b := newBase(t, scalarT(false, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.NewVector(ctx, "late"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.Root, "late")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cancelled spawn must not copy")
	}
}
