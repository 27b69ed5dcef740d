// Package core defines the lineage catalog abstractions shared by the
// catalog drivers.
package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Driver identifies a concrete catalog backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Entry records one vector produced by an operation.
type Entry struct {
	ID        string    `json:"id"`
	Base      string    `json:"base"`
	Case      string    `json:"case"`
	Time      string    `json:"time"`
	Operation string    `json:"operation"`
	Parents   []string  `json:"parents,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the key of the entry's snapshot, "<case>/<time>".
func (e Entry) Ref() string { return Ref(e.Case, e.Time) }

// Ref builds the key used in Entry.Parents.
func Ref(caseID, time string) string { return caseID + "/" + time }

// Catalog stores lineage entries.
type Catalog interface {
	// Record stores e, filling ID and CreatedAt when empty.
	Record(ctx context.Context, e Entry) (Entry, error)
	// Get returns the most recent entry for a snapshot. ErrNotFound if none.
	Get(ctx context.Context, caseID, time string) (Entry, error)
	// List returns the entries of a base case in recording order.
	List(ctx context.Context, base string) ([]Entry, error)
	// Forget deletes the entries of a base case and reports how many were removed.
	Forget(ctx context.Context, base string) (int, error)
	Driver() Driver
	Close() error
}

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("catalog: entry not found")

// Lineage walks parents breadth first starting at (caseID, time). Parents
// that were never recorded, such as the base case itself, are skipped.
func Lineage(ctx context.Context, cat Catalog, caseID, time string) ([]Entry, error) {
	first, err := cat.Get(ctx, caseID, time)
	if err != nil {
		return nil, err
	}
	out := []Entry{first}
	seen := map[string]struct{}{first.Ref(): {}}
	for i := 0; i < len(out); i++ {
		for _, ref := range out[i].Parents {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			parentCase, parentTime, ok := strings.Cut(ref, "/")
			if !ok {
				continue
			}
			parent, err := cat.Get(ctx, parentCase, parentTime)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, parent)
		}
	}
	return out, nil
}
