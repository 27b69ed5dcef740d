// Package sqlite persists the lineage catalog to an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"pintfoam/internal/catalog/core"
)

var _ core.Catalog = (*Store)(nil)

// Store keeps one row per recorded entry; parents are stored as a JSON array.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the catalog database at path.
func New(path string) (*Store, error) {
	if path == "" {
		path = "pintfoam.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer keeps sqlite from reporting SQLITE_BUSY across pooled connections
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS catalog_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		base TEXT NOT NULL,
		case_id TEXT NOT NULL,
		snapshot_time TEXT NOT NULL,
		operation TEXT NOT NULL,
		parents TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS catalog_entries_ref ON catalog_entries(case_id, snapshot_time)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog index: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Driver returns the catalog driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// Record inserts e.
func (s *Store) Record(ctx context.Context, e core.Entry) (core.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	parents, err := json.Marshal(nonNil(e.Parents))
	if err != nil {
		return core.Entry{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_entries(id, base, case_id, snapshot_time, operation, parents, created_at) VALUES(?,?,?,?,?,?,?)`,
		e.ID, e.Base, e.Case, e.Time, e.Operation, string(parents), e.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return core.Entry{}, fmt.Errorf("insert entry %s: %w", e.Ref(), err)
	}
	return e, nil
}

const selectColumns = `SELECT id, base, case_id, snapshot_time, operation, parents, created_at FROM catalog_entries`

// Get returns the latest entry recorded for the snapshot.
func (s *Store) Get(ctx context.Context, caseID, t string) (core.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE case_id = ? AND snapshot_time = ? ORDER BY seq DESC LIMIT 1`, caseID, t)
	if err != nil {
		return core.Entry{}, fmt.Errorf("select entry: %w", err)
	}
	entries, err := scanEntries(rows)
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
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE base = ? ORDER BY seq`, base)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return scanEntries(rows)
}

// Forget deletes every entry of base.
func (s *Store) Forget(ctx context.Context, base string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_entries WHERE base = ?`, base)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func scanEntries(rows *sql.Rows) ([]core.Entry, error) {
	defer func() { _ = rows.Close() }()
	var out []core.Entry
	for rows.Next() {
		var (
			e       core.Entry
			parents string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Base, &e.Case, &e.Time, &e.Operation, &parents, &created); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal([]byte(parents), &e.Parents); err != nil {
			return nil, fmt.Errorf("decode parents of %s: %w", e.ID, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("decode created_at of %s: %w", e.ID, err)
		}
		e.CreatedAt = ts
		out = append(out, e)
	}
	return out, rows.Err()
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
