// Package postgres provides a Postgres-backed lineage catalog so several
// hosts driving the same case root can share provenance.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"pintfoam/internal/catalog/core"
)

// Compile-time contract assertion ensuring the store satisfies the catalog interface.
var _ core.Catalog = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/pintfoam?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_entries (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		base TEXT NOT NULL,
		case_id TEXT NOT NULL,
		snapshot_time TEXT NOT NULL,
		operation TEXT NOT NULL,
		parents TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS catalog_entries_ref ON catalog_entries (case_id, snapshot_time)`,
	`CREATE INDEX IF NOT EXISTS catalog_entries_base ON catalog_entries (base)`,
}

// Store persists lineage entries to Postgres.
type Store struct {
	db *sql.DB
}

// New opens a catalog using dsn (falls back to defaultDSN) and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply catalog schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Driver returns the catalog driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// DB exposes the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Record inserts e.
func (s *Store) Record(ctx context.Context, e core.Entry) (core.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	parents := e.Parents
	if parents == nil {
		parents = []string{}
	}
	raw, err := json.Marshal(parents)
	if err != nil {
		return core.Entry{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_entries (id, base, case_id, snapshot_time, operation, parents, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Base, e.Case, e.Time, e.Operation, string(raw), e.CreatedAt); err != nil {
		return core.Entry{}, fmt.Errorf("insert entry %s: %w", e.Ref(), err)
	}
	return e, nil
}

const selectColumns = `SELECT id, base, case_id, snapshot_time, operation, parents, created_at FROM catalog_entries`

// Get returns the latest entry recorded for the snapshot.
func (s *Store) Get(ctx context.Context, caseID, t string) (core.Entry, error) {
	entries, err := s.query(ctx, selectColumns+` WHERE case_id = $1 AND snapshot_time = $2 ORDER BY seq DESC LIMIT 1`, caseID, t)
	if err != nil {
		return core.Entry{}, err
	}
	if len(entries) == 0 {
		return core.Entry{}, core.ErrNotFound
	}
	return entries[0], nil
}

// List returns the entries of base in recording order.
func (s *Store) List(ctx context.Context, base string) ([]core.Entry, error) {
	return s.query(ctx, selectColumns+` WHERE base = $1 ORDER BY seq`, base)
}

// Forget deletes every entry of base.
func (s *Store) Forget(ctx context.Context, base string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_entries WHERE base = $1`, base)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) query(ctx context.Context, q string, args ...any) ([]core.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Entry
	for rows.Next() {
		var (
			e       core.Entry
			parents string
		)
		if err := rows.Scan(&e.ID, &e.Base, &e.Case, &e.Time, &e.Operation, &parents, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(parents), &e.Parents); err != nil {
			return nil, fmt.Errorf("decode parents of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
