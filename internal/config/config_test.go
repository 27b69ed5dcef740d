package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "PINTFOAM_") {
			key, _, _ := strings.Cut(kv, "=")
			t.Setenv(key, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseCase != "baseCase" || cfg.Catalog.Driver != "sqlite" || cfg.Archive.Driver != "fs" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Catalog.SQLitePath != filepath.Join(".", "pintfoam.db") {
		t.Fatalf("unexpected sqlite path %q", cfg.Catalog.SQLitePath)
	}
	if cfg.CleanParallelism != 4 {
		t.Fatalf("unexpected parallelism %d", cfg.CleanParallelism)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pintfoam.yaml")
	content := `case_root: /data/runs
base_case: pitzDaily
fields: [U, p]
catalog:
  driver: memory
archive:
  driver: s3
  s3:
    bucket: snapshots
    region: eu-west-1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PINTFOAM_CONFIG", path)
	t.Setenv("PINTFOAM_FIELDS", "T, U ,")
	t.Setenv("PINTFOAM_ARCHIVE_S3_PATH_STYLE", "true")
	t.Setenv("PINTFOAM_CLEAN_PARALLELISM", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CaseRoot != "/data/runs" || cfg.BaseCase != "pitzDaily" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Fields, []string{"T", "U"}) {
		t.Fatalf("env fields not applied: %v", cfg.Fields)
	}
	if cfg.Catalog.Driver != "memory" {
		t.Fatalf("expected memory catalog, got %s", cfg.Catalog.Driver)
	}
	if !cfg.Archive.S3.PathStyle || cfg.Archive.S3.Bucket != "snapshots" || cfg.CleanParallelism != 2 {
		t.Fatalf("archive settings not merged: %+v", cfg.Archive)
	}
	if cfg.BasePath() != filepath.Join("/data/runs", "pitzDaily") {
		t.Fatalf("unexpected base path %s", cfg.BasePath())
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"catalog driver", map[string]string{"PINTFOAM_CATALOG_DRIVER": "mongo"}},
		{"archive driver", map[string]string{"PINTFOAM_ARCHIVE_DRIVER": "ftp"}},
		{"s3 without bucket", map[string]string{"PINTFOAM_ARCHIVE_DRIVER": "s3"}},
		{"parallelism not a number", map[string]string{"PINTFOAM_CLEAN_PARALLELISM": "many"}},
		{"parallelism zero", map[string]string{"PINTFOAM_CLEAN_PARALLELISM": "0"}},
		{"path style", map[string]string{"PINTFOAM_ARCHIVE_S3_PATH_STYLE": "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
