// Package config resolves runtime settings from an optional YAML file and
// PINTFOAM_* environment variables. Environment values win over the file.
//
//	PINTFOAM_CONFIG: path to a YAML file (optional)
//	PINTFOAM_CASE_ROOT: directory holding the base and working cases (default .)
//	PINTFOAM_BASE_CASE: base case directory name (default baseCase)
//	PINTFOAM_FIELDS: comma separated field names
//	PINTFOAM_CATALOG_DRIVER: memory|sqlite|postgres (default sqlite)
//	PINTFOAM_SQLITE_PATH: sqlite catalog file (default <case root>/pintfoam.db)
//	PINTFOAM_POSTGRES_DSN: DSN when the catalog driver is postgres
//	PINTFOAM_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	PINTFOAM_ARCHIVE_FS_ROOT: archive directory when driver=fs (default ./archive)
//	PINTFOAM_ARCHIVE_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE: s3 archive settings
//	PINTFOAM_LOG_LEVEL: logrus level name (default info)
//	PINTFOAM_CLEAN_PARALLELISM: concurrent deletions in Clean (default 4)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Catalog selects the lineage catalog backend.
type Catalog struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// S3 holds the S3 archive settings.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Archive selects the snapshot archive backend.
type Archive struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// Config is the resolved configuration.
type Config struct {
	CaseRoot         string   `yaml:"case_root"`
	BaseCase         string   `yaml:"base_case"`
	Fields           []string `yaml:"fields"`
	LogLevel         string   `yaml:"log_level"`
	CleanParallelism int      `yaml:"clean_parallelism"`
	Catalog          Catalog  `yaml:"catalog"`
	Archive          Archive  `yaml:"archive"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CaseRoot:         ".",
		BaseCase:         "baseCase",
		LogLevel:         "info",
		CleanParallelism: 4,
		Catalog:          Catalog{Driver: "sqlite"},
		Archive:          Archive{Driver: "fs", FSRoot: "archive"},
	}
}

// Load reads the file named by PINTFOAM_CONFIG (if any) and then applies
// environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv("PINTFOAM_CONFIG"))
}

// LoadFile is Load with an explicit file path; an empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.SQLitePath == "" {
		cfg.Catalog.SQLitePath = filepath.Join(cfg.CaseRoot, "pintfoam.db")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	var errs *multierror.Error
	if c.BaseCase == "" {
		errs = multierror.Append(errs, errors.New("base case name is empty"))
	}
	switch c.Catalog.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown catalog driver %q", c.Catalog.Driver))
	}
	switch c.Archive.Driver {
	case "fs", "s3", "memory":
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}
	if c.Archive.Driver == "s3" && c.Archive.S3.Bucket == "" {
		errs = multierror.Append(errs, errors.New("archive driver s3 requires a bucket"))
	}
	if c.CleanParallelism < 1 {
		errs = multierror.Append(errs, fmt.Errorf("clean parallelism must be positive, got %d", c.CleanParallelism))
	}
	return errs.ErrorOrNil()
}

// BasePath returns the absolute-or-relative path of the base case.
func (c Config) BasePath() string { return filepath.Join(c.CaseRoot, c.BaseCase) }

func applyEnv(cfg *Config) error {
	setString(&cfg.CaseRoot, "PINTFOAM_CASE_ROOT")
	setString(&cfg.BaseCase, "PINTFOAM_BASE_CASE")
	if v, ok := lookup("PINTFOAM_FIELDS"); ok {
		cfg.Fields = splitList(v)
	}
	setString(&cfg.LogLevel, "PINTFOAM_LOG_LEVEL")
	if v, ok := lookup("PINTFOAM_CLEAN_PARALLELISM"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PINTFOAM_CLEAN_PARALLELISM: %w", err)
		}
		cfg.CleanParallelism = n
	}
	setString(&cfg.Catalog.Driver, "PINTFOAM_CATALOG_DRIVER")
	setString(&cfg.Catalog.SQLitePath, "PINTFOAM_SQLITE_PATH")
	setString(&cfg.Catalog.PostgresDSN, "PINTFOAM_POSTGRES_DSN")
	setString(&cfg.Archive.Driver, "PINTFOAM_ARCHIVE_DRIVER")
	setString(&cfg.Archive.FSRoot, "PINTFOAM_ARCHIVE_FS_ROOT")
	setString(&cfg.Archive.S3.Bucket, "PINTFOAM_ARCHIVE_S3_BUCKET")
	setString(&cfg.Archive.S3.Region, "PINTFOAM_ARCHIVE_S3_REGION")
	setString(&cfg.Archive.S3.Endpoint, "PINTFOAM_ARCHIVE_S3_ENDPOINT")
	if v, ok := lookup("PINTFOAM_ARCHIVE_S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PINTFOAM_ARCHIVE_S3_PATH_STYLE: %w", err)
		}
		cfg.Archive.S3.PathStyle = b
	}
	return nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
