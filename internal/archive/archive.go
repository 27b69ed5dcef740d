// Package archive stores compressed snapshot tarballs in a pluggable object
// store and restores them into case directories.
package archive

import (
	"context"
	"fmt"

	"pintfoam/internal/archive/core"
	"pintfoam/internal/config"
	fsstore "pintfoam/internal/infra/archive/fs"
	"pintfoam/internal/infra/archive/memory"
	s3store "pintfoam/internal/infra/archive/s3"
)

type (
	// Driver identifies an archive backend driver.
	Driver = core.Driver
	// PutOptions configures an object write.
	PutOptions = core.PutOptions
	// Info describes a stored archive.
	Info = core.Info
	// Store is the interface for archive storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound      = core.ErrNotFound
	ErrAlreadyExists = core.ErrAlreadyExists
)

// Open selects a Store implementation from cfg. Defaults to fs.
func Open(ctx context.Context, cfg config.Archive) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }

// NewMockS3ForTests exposes the fake-transport S3 store for cross-package tests.
func NewMockS3ForTests(pageSize int) Store { return s3store.NewMockForTests(pageSize) }
