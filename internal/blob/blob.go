// Package blob re-exports core blob abstractions and selects a backend from
// configuration.
package blob

import (
	"context"
	"fmt"

	"wastelink/internal/blob/core"
	fsstore "wastelink/internal/infra/blob/fs"
	memorystore "wastelink/internal/infra/blob/memory"
	s3store "wastelink/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config re-exports the infra S3 configuration type.
	S3Config = s3store.Config
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrNotFound indicates the requested key does not exist.
var ErrNotFound = core.ErrNotFound

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	// Root is the directory used by the filesystem driver.
	Root string
	S3   S3Config
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	s, err := fsstore.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := s3store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open builds the Store named by cfg.Driver; an empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
