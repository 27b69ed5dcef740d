// Package field locates and mutates the internalField array of an OpenFOAM
// field file through a memory mapping. Only the bytes of that array are ever
// rewritten; the rest of the file is opaque.
package field

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
)

// Mapping is a scoped view of one field's internalField array. Values are
// addressed by flat component index: entry i of a vector field occupies
// indices 3i, 3i+1 and 3i+2. A Mapping must not be used after Close.
//
// Binary arrays are read and written directly in the mapped file. ASCII
// arrays are decoded on open and written back on Close when modified.
type Mapping struct {
	path     string
	name     string
	file     *os.File
	mm       mmap.MMap
	writable bool
	layout   layout
	region   []byte
	values   []float64
	dirty    bool
	closed   bool
}

// Open maps the field file at path read-write and locates its internalField array.
func Open(path, name string) (*Mapping, error) {
	return open(path, name, true)
}

// OpenReadOnly maps the field file at path read-only.
func OpenReadOnly(path, name string) (*Mapping, error) {
	return open(path, name, false)
}

func open(path, name string, writable bool) (*Mapping, error) {
	flag, prot := os.O_RDONLY, mmap.RDONLY
	if writable {
		flag, prot = os.O_RDWR, mmap.RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, name, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open field %s: %w", name, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat field %s: %w", name, err)
	}
	if st.Size() == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, malformed("empty file"))
	}
	mm, err := mmap.Map(f, prot, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap field %s: %w", name, err)
	}
	l, err := locate(mm)
	if err != nil {
		_ = mm.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m := &Mapping{path: path, name: name, file: f, mm: mm, writable: writable, layout: l}
	if l.format == Binary {
		m.region = mm[l.start:l.end]
	} else {
		m.values = l.values
	}
	return m, nil
}

// With opens a writable mapping, runs fn and releases the mapping on every
// exit path. A release failure is joined with fn's error.
func With(path, name string, fn func(*Mapping) error) error {
	m, err := Open(path, name)
	if err != nil {
		return err
	}
	return scoped(m, fn)
}

// WithReadOnly is the read-only counterpart of With.
func WithReadOnly(path, name string, fn func(*Mapping) error) error {
	m, err := OpenReadOnly(path, name)
	if err != nil {
		return err
	}
	return scoped(m, fn)
}

func scoped(m *Mapping, fn func(*Mapping) error) (err error) {
	defer func() {
		if cerr := m.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	return fn(m)
}

func (m *Mapping) check() {
	if m.closed {
		panic("field: use of released mapping " + m.path)
	}
}

// Name returns the field name the mapping was opened for.
func (m *Mapping) Name() string { return m.name }

// Path returns the mapped file path.
func (m *Mapping) Path() string { return m.path }

// Kind returns the rank of the field entries.
func (m *Mapping) Kind() Kind { return m.layout.kind }

// Format reports how the array is encoded on disk.
func (m *Mapping) Format() Format { return m.layout.format }

// Uniform reports whether the field is stored as a single uniform value.
func (m *Mapping) Uniform() bool { return m.layout.uniform }

// Len returns the number of entries declared for the array.
func (m *Mapping) Len() int { return m.layout.count }

// Width returns the number of components per entry.
func (m *Mapping) Width() int { return m.layout.kind.Width() }

// Size returns the number of scalar components, Len()*Width().
func (m *Mapping) Size() int { return m.layout.count * m.layout.kind.Width() }

// At returns component i.
func (m *Mapping) At(i int) float64 {
	m.check()
	if m.region == nil {
		return m.values[i]
	}
	n := m.layout.scalarSize
	b := m.region[i*n : (i+1)*n]
	if n == 4 {
		return float64(math.Float32frombits(m.layout.order.Uint32(b)))
	}
	return math.Float64frombits(m.layout.order.Uint64(b))
}

// Set assigns component i. Binary arrays are updated in the mapped file
// immediately.
func (m *Mapping) Set(i int, v float64) {
	m.check()
	if !m.writable {
		panic("field: Set on read-only mapping " + m.path)
	}
	if m.region == nil {
		m.values[i] = v
		m.dirty = true
		return
	}
	n := m.layout.scalarSize
	b := m.region[i*n : (i+1)*n]
	if n == 4 {
		m.layout.order.PutUint32(b, math.Float32bits(float32(v)))
		return
	}
	m.layout.order.PutUint64(b, math.Float64bits(v))
}

// Entry returns a copy of the components of entry i.
func (m *Mapping) Entry(i int) []float64 {
	w := m.Width()
	out := make([]float64, w)
	for c := 0; c < w; c++ {
		out[c] = m.At(i*w + c)
	}
	return out
}

// Values returns a copy of every component.
func (m *Mapping) Values() []float64 {
	m.check()
	out := make([]float64, m.Size())
	for i := range out {
		out[i] = m.At(i)
	}
	return out
}

// Assign overwrites every component. The length of vals must equal Size().
func (m *Mapping) Assign(vals []float64) error {
	m.check()
	if len(vals) != m.Size() {
		return fmt.Errorf("%w: assign %d values to %s holding %d", ErrSizeMismatch, len(vals), m.name, m.Size())
	}
	for i, v := range vals {
		m.Set(i, v)
	}
	return nil
}

// Apply replaces every component with f(i, value).
func (m *Mapping) Apply(f func(i int, v float64) float64) {
	m.check()
	for i, n := 0, m.Size(); i < n; i++ {
		m.Set(i, f(i, m.At(i)))
	}
}

// Close writes back pending ascii changes, flushes and unmaps the file.
// Closing twice is a no-op.
func (m *Mapping) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var result *multierror.Error
	var prefix, span, suffix []byte
	if m.writable && m.dirty {
		enc := encodeASCII(m.layout, m.values)
		if width := m.layout.end - m.layout.start; len(enc) <= width {
			n := copy(m.mm[m.layout.start:], enc)
			for i := m.layout.start + n; i < m.layout.end; i++ {
				m.mm[i] = ' '
			}
		} else {
			prefix = append([]byte(nil), m.mm[:m.layout.start]...)
			suffix = append([]byte(nil), m.mm[m.layout.end:]...)
			span = enc
		}
	}
	if m.writable {
		if err := m.mm.Flush(); err != nil {
			result = multierror.Append(result, fmt.Errorf("flush %s: %w", m.path, err))
		}
	}
	if err := m.mm.Unmap(); err != nil {
		result = multierror.Append(result, fmt.Errorf("release %s: munmap: %w", m.path, err))
	}
	if err := m.file.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close %s: %w", m.path, err))
	}
	if span != nil {
		if err := spliceFile(m.path, prefix, span, suffix); err != nil {
			result = multierror.Append(result, fmt.Errorf("rewrite %s: %w", m.path, err))
		}
	}
	m.mm, m.region, m.values, m.file = nil, nil, nil, nil
	return result.ErrorOrNil()
}
