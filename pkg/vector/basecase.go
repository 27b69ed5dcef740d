// Package vector treats OpenFOAM case snapshots as solution vectors: cheap
// copy-on-write clones of a base case whose fields are combined elementwise
// through memory-mapped views, as needed by parareal style iterations.
package vector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"pintfoam/internal/catalog"
	"pintfoam/internal/snapshot"
)

// BaseCase is the immutable reference case that working cases are copied from.
type BaseCase struct {
	Root   string
	Name   string
	Fields []string

	opts settings
}

// NewBaseCase describes the case at root/name. The directory must exist.
func NewBaseCase(root, name string, fields []string, opts ...Option) (*BaseCase, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	b := &BaseCase{
		Root:   root,
		Name:   name,
		Fields: append([]string(nil), fields...),
		opts:   defaultSettings(),
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	st, err := os.Stat(b.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("base case %s: %w", b.Path(), snapshot.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("base case %s: not a directory", b.Path())
	}
	return b, nil
}

// Path returns root/name.
func (b *BaseCase) Path() string { return filepath.Join(b.Root, b.Name) }

// HasField reports whether name is one of the declared fields.
func (b *BaseCase) HasField(name string) bool {
	for _, f := range b.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// NewVector returns the vector at time "0" of working case name, copying the
// base case tree to root/name first when it does not exist yet. An existing
// case is reused untouched. An empty name draws a fresh id.
func (b *BaseCase) NewVector(ctx context.Context, name string) (Vector, error) {
	var v Vector
	err := b.observe(ctx, "new_vector", func(ctx context.Context) error {
		id := name
		if id == "" {
			id = b.opts.newID()
		}
		if err := b.validCaseID(id); err != nil {
			return err
		}
		v = Vector{Base: b, Case: id, Time: "0"}
		created, err := b.ensureCase(ctx, id)
		if err != nil {
			return err
		}
		if created {
			return b.record(ctx, v, "new", Vector{Base: b, Case: b.Name, Time: "0"})
		}
		return nil
	}, "case", name)
	if err != nil {
		return Vector{}, err
	}
	return v, nil
}

func (b *BaseCase) ensureCase(ctx context.Context, id string) (bool, error) {
	dst := filepath.Join(b.Root, id)
	if _, err := os.Lstat(dst); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := snapshot.CopyCase(b.Path(), dst); err != nil {
		return false, fmt.Errorf("spawn case %s: %w", id, err)
	}
	return true, nil
}

// VectorPaths lists every directory under Root other than the base case and
// the preserved directories.
func (b *BaseCase) VectorPaths() ([]string, error) {
	entries, err := os.ReadDir(b.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("case root %s: %w", b.Root, snapshot.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == b.Name {
			continue
		}
		p := filepath.Join(b.Root, e.Name())
		if b.preserved(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (b *BaseCase) preserved(dir string) bool {
	if len(b.opts.preserve) == 0 {
		return false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	for _, p := range b.opts.preserve {
		if rel, err := filepath.Rel(abs, p); err == nil && filepath.IsLocal(rel) {
			return true
		}
	}
	return false
}

// Clean removes every working case under Root and forgets their lineage.
// The base case itself is kept. Distinct cases are removed concurrently;
// all failures are reported together.
func (b *BaseCase) Clean(ctx context.Context) error {
	return b.observe(ctx, "clean", func(ctx context.Context) error {
		paths, err := b.VectorPaths()
		if err != nil {
			return err
		}
		var (
			mu   sync.Mutex
			errs *multierror.Error
			g    errgroup.Group
		)
		g.SetLimit(b.opts.cleanParallelism)
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				break
			}
			g.Go(func() error {
				if err := snapshot.RemoveCase(p); err != nil {
					mu.Lock()
					errs = multierror.Append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		if b.opts.catalog != nil {
			n, err := b.opts.catalog.Forget(ctx, b.Name)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("forget lineage: %w", err))
			} else {
				b.opts.logger.Debug("lineage forgotten", "base", b.Name, "entries", n)
			}
		}
		return errs.ErrorOrNil()
	})
}

// Vector returns a handle on an existing snapshot without touching the disk.
func (b *BaseCase) Vector(caseID, t string) Vector {
	return Vector{Base: b, Case: caseID, Time: t}
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (b *BaseCase) validCaseID(id string) error {
	if err := validName(id); err != nil {
		return err
	}
	if id == b.Name {
		return fmt.Errorf("%w: %q is the base case", ErrInvalidName, id)
	}
	return nil
}

func (b *BaseCase) observe(ctx context.Context, op string, fn func(context.Context) error, kv ...any) error {
	start := time.Now()
	ctx, span := b.opts.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	b.opts.metrics.Observe(ctx, op, err == nil, time.Since(start))
	args := append([]any{"op", op, "base", b.Name}, kv...)
	if err != nil {
		b.opts.logger.Warn("vector operation failed", append(args, "error", err)...)
		return err
	}
	b.opts.logger.Debug("vector operation", append(args, "duration", time.Since(start))...)
	return nil
}

// Record adds a lineage entry for v produced by op from parents. It is a
// no-op without a catalog. Tools that write snapshots outside this package
// (solver runs, field mapping) use it to keep lineage complete.
func (b *BaseCase) Record(ctx context.Context, v Vector, op string, parents ...Vector) error {
	return b.record(ctx, v, op, parents...)
}

// Logger returns the logger configured with WithLogger.
func (b *BaseCase) Logger() Logger { return b.opts.logger }

func (b *BaseCase) record(ctx context.Context, v Vector, op string, parents ...Vector) error {
	if b.opts.catalog == nil {
		return nil
	}
	refs := make([]string, len(parents))
	for i, p := range parents {
		refs[i] = catalog.Ref(p.Case, p.Time)
	}
	if _, err := b.opts.catalog.Record(ctx, catalog.Entry{
		Base:      b.Name,
		Case:      v.Case,
		Time:      v.Time,
		Operation: op,
		Parents:   refs,
	}); err != nil {
		return fmt.Errorf("record lineage of %s: %w", v, err)
	}
	return nil
}
