package vector

import (
	"context"
	"fmt"
	"path/filepath"

	"pintfoam/internal/field"
	"pintfoam/internal/snapshot"
)

// Vector names one snapshot of a working case. It is a plain value; the
// data lives on disk under Base.Root/Case/Time.
type Vector struct {
	Base *BaseCase
	Case string
	Time string
}

// Path returns the working case directory.
func (v Vector) Path() string { return filepath.Join(v.Base.Root, v.Case) }

// Dirname returns the snapshot directory.
func (v Vector) Dirname() string { return filepath.Join(v.Base.Root, v.Case, v.Time) }

// Fields returns the fields declared on the base case.
func (v Vector) Fields() []string { return v.Base.Fields }

func (v Vector) String() string { return v.Case + "/" + v.Time }

// AllTimes returns one vector per snapshot of the working case in numeric
// time order.
func (v Vector) AllTimes() ([]Vector, error) {
	times, err := snapshot.ListTimes(v.Path())
	if err != nil {
		return nil, err
	}
	out := make([]Vector, len(times))
	for i, t := range times {
		out[i] = Vector{Base: v.Base, Case: v.Case, Time: t}
	}
	return out, nil
}

// Latest returns the vector at the greatest snapshot time of the working case.
func (v Vector) Latest() (Vector, error) {
	t, err := snapshot.Latest(v.Path())
	if err != nil {
		return Vector{}, err
	}
	return Vector{Base: v.Base, Case: v.Case, Time: t}, nil
}

// FieldPath returns the file of a declared field.
func (v Vector) FieldPath(name string) (string, error) {
	if !v.Base.HasField(name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return filepath.Join(v.Dirname(), name), nil
}

// WithMappedField maps the internalField of name read-write for the
// duration of fn. Writes reach the file before it returns.
func (v Vector) WithMappedField(name string, fn func(*field.Mapping) error) error {
	path, err := v.FieldPath(name)
	if err != nil {
		return err
	}
	return field.With(path, name, fn)
}

// WithReadField maps the internalField of name read-only for the duration of fn.
func (v Vector) WithReadField(name string, fn func(*field.Mapping) error) error {
	path, err := v.FieldPath(name)
	if err != nil {
		return err
	}
	return field.WithReadOnly(path, name, fn)
}

// Clone copies this snapshot into working case name (fresh id when empty).
// The snapshot directory of the same time in the target case is replaced,
// not merged, so the clone shares no files with v.
func (v Vector) Clone(ctx context.Context, name string) (Vector, error) {
	var c Vector
	err := v.Base.observe(ctx, "clone", func(ctx context.Context) error {
		var err error
		if c, err = v.clone(ctx, name); err != nil {
			return err
		}
		return v.Base.record(ctx, c, "clone", v)
	}, "case", v.Case, "time", v.Time)
	return c, err
}

func (v Vector) clone(ctx context.Context, name string) (Vector, error) {
	if name != "" && name == v.Case {
		return Vector{}, fmt.Errorf("clone %s into its own case: %w", v, ErrInvalidName)
	}
	x, err := v.Base.NewVector(ctx, name)
	if err != nil {
		return Vector{}, err
	}
	x.Time = v.Time
	if err := ctx.Err(); err != nil {
		return Vector{}, err
	}
	if err := snapshot.ReplaceSnapshot(v.Dirname(), x.Dirname()); err != nil {
		return Vector{}, fmt.Errorf("clone %s: %w", v, err)
	}
	return x, nil
}
