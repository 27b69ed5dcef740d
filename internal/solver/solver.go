// Package solver drives the external OpenFOAM tools against vectors: it
// rewrites controlDict for a time slice, runs the solver in a cloned case and
// hands back the snapshot it wrote.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cenkalti/backoff/v4"

	"pintfoam/internal/snapshot"
	"pintfoam/pkg/vector"
)

// Epsilon is the tolerance when matching a vector's time to a start time.
const Epsilon = 1e-6

// ErrTimeMismatch indicates a start time that does not match the initial vector.
var ErrTimeMismatch = errors.New("solver: start time does not match vector time")

// Solver runs tools through a Runner.
type Solver struct {
	runner     Runner
	newBackOff func() backoff.BackOff
}

// Option configures a Solver.
type Option func(*Solver)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(s *Solver) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithBackOff sets the retry policy for controlDict rewrites.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *Solver) {
		if fn != nil {
			s.newBackOff = fn
		}
	}
}

// New returns a Solver running real processes.
func New(opts ...Option) *Solver {
	s := &Solver{runner: ExecRunner{}, newBackOff: DefaultBackOff}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FoamOptions tunes a solver run.
type FoamOptions struct {
	// WriteInterval defaults to t1-t0 so only the end state is written.
	WriteInterval float64
	// WriteControl defaults to runTime.
	WriteControl string
	// JobName names the working case; a fresh id is used when empty.
	JobName string
}

// Foam advances x from t0 to t1 with solver using time step dt. x is cloned
// first, so it is never modified; the result is the latest snapshot written
// by the solver in the clone.
func (s *Solver) Foam(ctx context.Context, solver string, dt float64, x vector.Vector, t0, t1 float64, opts FoamOptions) (vector.Vector, error) {
	xt, err := strconv.ParseFloat(x.Time, 64)
	if err != nil || math.Abs(xt-t0) >= Epsilon {
		return vector.Vector{}, fmt.Errorf("%w: %v != %s", ErrTimeMismatch, t0, x.Time)
	}
	logger := x.Base.Logger()
	y, err := x.Clone(ctx, opts.JobName)
	if err != nil {
		return vector.Vector{}, err
	}
	writeInterval := opts.WriteInterval
	if writeInterval == 0 {
		writeInterval = t1 - t0
	}
	writeControl := opts.WriteControl
	if writeControl == "" {
		writeControl = "runTime"
	}
	entries := []Entry{
		{Key: "startFrom", Value: "latestTime"},
		{Key: "startTime", Value: Float(t0)},
		{Key: "endTime", Value: Float(t1)},
		{Key: "deltaT", Value: Float(dt)},
		{Key: "writeInterval", Value: Float(writeInterval)},
		{Key: "writeControl", Value: writeControl},
	}
	if err := SetControlDict(ctx, y.Path(), entries, s.newBackOff()); err != nil {
		return vector.Vector{}, fmt.Errorf("prepare %s: %w", y.Case, err)
	}
	logger.Info("running solver", "solver", solver, "case", y.Case, "t0", t0, "t1", t1, "dt", dt)
	if err := s.runner.Run(ctx, y.Path(), solver); err != nil {
		logger.Error("solver failed", "solver", solver, "case", y.Case, "error", err)
		return vector.Vector{}, err
	}
	latest, err := snapshot.Latest(y.Path())
	if err != nil {
		return vector.Vector{}, err
	}
	out := x.Base.Vector(y.Case, latest)
	if err := x.Base.Record(ctx, out, "foam:"+solver, y); err != nil {
		return vector.Vector{}, err
	}
	return out, nil
}

// BlockMesh generates the mesh of the base case.
func (s *Solver) BlockMesh(ctx context.Context, base *vector.BaseCase) error {
	return s.runner.Run(ctx, base.Path(), "blockMesh")
}

// SetFields writes defaultFieldValues and regions into system/setFieldsDict
// of v's case and runs setFields there. Both values are dictionary source
// text, for example "( volScalarFieldValue T 0 )".
func (s *Solver) SetFields(ctx context.Context, v vector.Vector, defaultFieldValues, regions string) error {
	path := filepath.Join(v.Path(), "system", "setFieldsDict")
	if err := SetEntries(path, []Entry{
		{Key: "defaultFieldValues", Value: defaultFieldValues},
		{Key: "regions", Value: regions},
	}); err != nil {
		return err
	}
	return s.runner.Run(ctx, v.Path(), "setFields")
}

// MapOptions tunes MapFields.
type MapOptions struct {
	// Inconsistent is set when source and target boundaries differ.
	Inconsistent bool
	// MapMethod is one of mapNearest, interpolate or cellPointInterpolate.
	MapMethod string
}

// MapFields maps source onto a fresh working case of target. mapFields
// writes into the 0 directory, which is then renamed to the source time.
func (s *Solver) MapFields(ctx context.Context, source vector.Vector, target *vector.BaseCase, opts MapOptions) (vector.Vector, error) {
	result, err := target.NewVector(ctx, "")
	if err != nil {
		return vector.Vector{}, err
	}
	result.Time = source.Time
	src, err := filepath.Abs(source.Path())
	if err != nil {
		return vector.Vector{}, err
	}
	var args []string
	if !opts.Inconsistent {
		args = append(args, "-consistent")
	}
	if opts.MapMethod != "" {
		args = append(args, "-mapMethod", opts.MapMethod)
	}
	args = append(args, "-sourceTime", source.Time, src)
	if err := s.runner.Run(ctx, result.Path(), "mapFields", args...); err != nil {
		return vector.Vector{}, err
	}
	if source.Time != "0" {
		if err := os.Rename(filepath.Join(result.Path(), "0"), result.Dirname()); err != nil {
			return vector.Vector{}, fmt.Errorf("map fields: %w", err)
		}
	}
	if err := target.Record(ctx, result, "map_fields", source); err != nil {
		return vector.Vector{}, err
	}
	return result, nil
}
