// Package catalog re-exports the lineage catalog abstractions and selects a
// driver from configuration.
package catalog

import (
	"context"
	"fmt"

	"pintfoam/internal/catalog/core"
	"pintfoam/internal/config"
	"pintfoam/internal/infra/catalog/memory"
	"pintfoam/internal/infra/catalog/postgres"
	"pintfoam/internal/infra/catalog/sqlite"
)

type (
	// Driver identifies a catalog backend.
	Driver = core.Driver
	// Entry records one produced vector.
	Entry = core.Entry
	// Catalog stores lineage entries.
	Catalog = core.Catalog
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

// ErrNotFound is returned when no entry matches.
var ErrNotFound = core.ErrNotFound

// Ref builds the "<case>/<time>" key used in Entry.Parents.
func Ref(caseID, t string) string { return core.Ref(caseID, t) }

// Lineage walks the parents of a snapshot breadth first.
func Lineage(ctx context.Context, cat Catalog, caseID, t string) ([]Entry, error) {
	return core.Lineage(ctx, cat, caseID, t)
}

// NewMemory returns an in-memory catalog.
func NewMemory() Catalog { return memory.New() }

// Open selects a catalog implementation from cfg. Defaults to sqlite.
func Open(ctx context.Context, cfg config.Catalog) (Catalog, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		return sqlite.New(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown catalog driver %s", driver)
	}
}
