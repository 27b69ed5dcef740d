// Package memory implements an in-memory lineage catalog for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pintfoam/internal/catalog/core"
)

// Store implements core.Catalog backed by process memory.
type Store struct {
	mu      sync.RWMutex
	entries []core.Entry
}

// New returns an empty in-memory catalog.
func New() *Store { return &Store{} }

// Driver returns the catalog driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Record appends e.
func (s *Store) Record(_ context.Context, e core.Entry) (core.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Parents = append([]string(nil), e.Parents...)
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return e, nil
}

// Get returns the latest entry recorded for the snapshot.
func (s *Store) Get(_ context.Context, caseID, t string) (core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; e.Case == caseID && e.Time == t {
			return cloneEntry(e), nil
		}
	}
	return core.Entry{}, core.ErrNotFound
}

// List returns the entries of base in recording order.
func (s *Store) List(_ context.Context, base string) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Entry
	for _, e := range s.entries {
		if e.Base == base {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// Forget drops every entry of base.
func (s *Store) Forget(_ context.Context, base string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Base == base {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cloneEntry(e core.Entry) core.Entry {
	e.Parents = append([]string(nil), e.Parents...)
	return e
}
