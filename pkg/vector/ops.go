package vector

import (
	"context"
	"fmt"
	"math"

	"pintfoam/internal/field"
)

// ZipWith clones v and overwrites every element of every field with
// op(v[i], other[i]). Both operands must declare the same field set and
// each field must have the same shape.
func (v Vector) ZipWith(ctx context.Context, other Vector, op func(a, b float64) float64) (Vector, error) {
	return v.zipWith(ctx, other, "zip_with", op)
}

// Add returns v + other.
func (v Vector) Add(ctx context.Context, other Vector) (Vector, error) {
	return v.zipWith(ctx, other, "zip_with:add", func(a, b float64) float64 { return a + b })
}

// Sub returns v - other.
func (v Vector) Sub(ctx context.Context, other Vector) (Vector, error) {
	return v.zipWith(ctx, other, "zip_with:sub", func(a, b float64) float64 { return a - b })
}

// Axpy returns v + a*x with a single clone.
func (v Vector) Axpy(ctx context.Context, a float64, x Vector) (Vector, error) {
	return v.zipWith(ctx, x, "zip_with:axpy", func(p, q float64) float64 { return p + a*q })
}

// Map clones v and overwrites every element of every field with f(v[i]).
func (v Vector) Map(ctx context.Context, f func(float64) float64) (Vector, error) {
	return v.mapWith(ctx, "map", f)
}

// Scale returns s*v.
func (v Vector) Scale(ctx context.Context, s float64) (Vector, error) {
	return v.mapWith(ctx, "map:scale", func(x float64) float64 { return x * s })
}

func (v Vector) zipWith(ctx context.Context, other Vector, label string, op func(a, b float64) float64) (Vector, error) {
	var x Vector
	err := v.Base.observe(ctx, label, func(ctx context.Context) error {
		if !sameFields(v.Fields(), other.Fields()) {
			return fmt.Errorf("%w: %v vs %v", ErrFieldMismatch, v.Fields(), other.Fields())
		}
		var err error
		if x, err = v.clone(ctx, ""); err != nil {
			return err
		}
		for _, name := range v.Fields() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := other.WithReadField(name, func(b *field.Mapping) error {
				return x.WithMappedField(name, func(a *field.Mapping) error {
					if a.Len() != b.Len() || a.Width() != b.Width() {
						return fmt.Errorf("%w: field %s has %dx%d entries in %s and %dx%d in %s",
							ErrFieldMismatch, name, a.Len(), a.Width(), v, b.Len(), b.Width(), other)
					}
					a.Apply(func(i int, av float64) float64 { return op(av, b.At(i)) })
					return nil
				})
			})
			if err != nil {
				return err
			}
		}
		return v.Base.record(ctx, x, label, v, other)
	}, "case", v.Case, "other", other.Case, "time", v.Time)
	if err != nil {
		return Vector{}, err
	}
	return x, nil
}

func (v Vector) mapWith(ctx context.Context, label string, f func(float64) float64) (Vector, error) {
	var x Vector
	err := v.Base.observe(ctx, label, func(ctx context.Context) error {
		var err error
		if x, err = v.clone(ctx, ""); err != nil {
			return err
		}
		for _, name := range v.Fields() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := x.WithMappedField(name, func(a *field.Mapping) error {
				a.Apply(func(_ int, av float64) float64 { return f(av) })
				return nil
			})
			if err != nil {
				return err
			}
		}
		return v.Base.record(ctx, x, label, v)
	}, "case", v.Case, "time", v.Time)
	if err != nil {
		return Vector{}, err
	}
	return x, nil
}

// Norms returns the maximum and the mean of |x| over one field.
func (v Vector) Norms(name string) (maxAbs, meanAbs float64, err error) {
	err = v.WithReadField(name, func(m *field.Mapping) error {
		n := m.Size()
		if n == 0 {
			return nil
		}
		var sum float64
		for i := 0; i < n; i++ {
			a := math.Abs(m.At(i))
			sum += a
			maxAbs = math.Max(maxAbs, a)
		}
		meanAbs = sum / float64(n)
		return nil
	})
	return maxAbs, meanAbs, err
}

func sameFields(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, f := range a {
		set[f] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, f := range b {
		if _, ok := set[f]; !ok {
			return false
		}
		other[f] = struct{}{}
	}
	return len(set) == len(other)
}
