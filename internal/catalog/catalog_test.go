package catalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"pintfoam/internal/config"
	"pintfoam/internal/infra/catalog/postgres"
	pgtestutil "pintfoam/internal/infra/catalog/postgres/testutil"
)

func openDrivers(t *testing.T) map[string]Catalog {
	t.Helper()
	ctx := context.Background()
	out := map[string]Catalog{}

	mem, err := Open(ctx, config.Catalog{Driver: "memory"})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	out["memory"] = mem

	lite, err := Open(ctx, config.Catalog{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "nested", "catalog.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	out["sqlite"] = lite

	db, _ := pgtestutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	pg, err := Open(ctx, config.Catalog{Driver: "postgres"})
	restore()
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	out["postgres"] = pg

	for _, c := range out {
		cat := c
		t.Cleanup(func() { _ = cat.Close() })
	}
	return out
}

func TestCatalogDriversShareSemantics(t *testing.T) {
	ctx := context.Background()
	for name, cat := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if string(cat.Driver()) != name {
				t.Fatalf("driver mismatch: %s", cat.Driver())
			}
			a, err := cat.Record(ctx, Entry{Base: "baseCase", Case: "a", Time: "0", Operation: "new"})
			if err != nil {
				t.Fatalf("record a: %v", err)
			}
			if a.ID == "" || a.CreatedAt.IsZero() {
				t.Fatalf("expected ID and CreatedAt to be filled: %+v", a)
			}
			if _, err := cat.Record(ctx, Entry{Base: "baseCase", Case: "b", Time: "0", Operation: "clone", Parents: []string{Ref("a", "0")}}); err != nil {
				t.Fatalf("record b: %v", err)
			}
			if _, err := cat.Record(ctx, Entry{Base: "baseCase", Case: "c", Time: "0", Operation: "zip_with:add", Parents: []string{Ref("a", "0"), Ref("b", "0")}}); err != nil {
				t.Fatalf("record c: %v", err)
			}
			if _, err := cat.Record(ctx, Entry{Base: "other", Case: "z", Time: "1", Operation: "new"}); err != nil {
				t.Fatalf("record z: %v", err)
			}

			got, err := cat.Get(ctx, "c", "0")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Operation != "zip_with:add" || len(got.Parents) != 2 {
				t.Fatalf("unexpected entry: %+v", got)
			}
			if _, err := cat.Get(ctx, "missing", "0"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			lineage, err := Lineage(ctx, cat, "c", "0")
			if err != nil {
				t.Fatalf("lineage: %v", err)
			}
			var refs []string
			for _, e := range lineage {
				refs = append(refs, e.Ref())
			}
			if len(refs) != 3 || refs[0] != "c/0" || refs[1] != "a/0" || refs[2] != "b/0" {
				t.Fatalf("unexpected lineage order: %v", refs)
			}

			list, err := cat.List(ctx, "baseCase")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 3 || list[0].Case != "a" || list[2].Case != "c" {
				t.Fatalf("unexpected list: %+v", list)
			}

			n, err := cat.Forget(ctx, "baseCase")
			if err != nil {
				t.Fatalf("forget: %v", err)
			}
			if n != 3 {
				t.Fatalf("expected 3 removed, got %d", n)
			}
			if list, _ := cat.List(ctx, "baseCase"); len(list) != 0 {
				t.Fatalf("expected empty list after forget, got %d", len(list))
			}
			if list, _ := cat.List(ctx, "other"); len(list) != 1 {
				t.Fatalf("other base must survive forget, got %d", len(list))
			}
		})
	}
}

func TestGetReturnsLatestRecord(t *testing.T) {
	ctx := context.Background()
	for name, cat := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := cat.Record(ctx, Entry{Base: "b", Case: "x", Time: "0", Operation: "new"}); err != nil {
				t.Fatalf("record: %v", err)
			}
			if _, err := cat.Record(ctx, Entry{Base: "b", Case: "x", Time: "0", Operation: "map:scale"}); err != nil {
				t.Fatalf("record: %v", err)
			}
			got, err := cat.Get(ctx, "x", "0")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Operation != "map:scale" {
				t.Fatalf("expected latest entry, got %s", got.Operation)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.Catalog{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error")
	}
}
