package core

import (
	"context"
	"fmt"
	"path/filepath"

	"wastelink/internal/blob"
	"wastelink/internal/infra/persistence/blobsnap"
	"wastelink/internal/infra/persistence/memory"
	"wastelink/internal/infra/persistence/postgres"
	"wastelink/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageFile     StorageDriver = "file"     // JSON snapshot file on local disk
	StorageS3       StorageDriver = "s3"       // JSON snapshot object in an S3 bucket
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// DefaultSnapshotPath is the snapshot file used by the file driver.
const DefaultSnapshotPath = "./data/wastelink.json"

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	Driver StorageDriver
	// SnapshotPath is the snapshot file for the file driver.
	SnapshotPath string
	SQLitePath   string
	PostgresDSN  string
	S3           blob.S3Config
	// S3Key is the object key of the snapshot for the s3 driver.
	S3Key string
}

// OpenPersistentStore opens the configured backend and loads its snapshot.
// An empty driver defaults to file.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine, opts ...memory.Option) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageFile
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageFile:
		path := cfg.SnapshotPath
		if path == "" {
			path = DefaultSnapshotPath
		}
		store, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, Root: filepath.Dir(path)})
		if err != nil {
			return nil, fmt.Errorf("open snapshot directory: %w", err)
		}
		return openSnapshotStore(ctx, blobsnap.New(store, filepath.Base(path)), engine, opts)
	case StorageS3:
		store, err := blob.Open(ctx, blob.Config{Driver: blob.DriverS3, S3: cfg.S3})
		if err != nil {
			return nil, fmt.Errorf("open s3 snapshot store: %w", err)
		}
		return openSnapshotStore(ctx, blobsnap.New(store, cfg.S3Key), engine, opts)
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

func openSnapshotStore(ctx context.Context, persister memory.Persister, engine *RulesEngine, opts []memory.Option) (PersistentStore, error) {
	store, err := memory.Open(ctx, persister, engine, opts...)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenService opens the configured store and wraps it in a Service that
// shares the service clock and account id source.
func OpenService(ctx context.Context, cfg StorageConfig, engine *RulesEngine, opts ...Option) (*Service, error) {
	options := resolveOptions(opts)
	store, err := OpenPersistentStore(ctx, cfg, engine, options.storeOptions()...)
	if err != nil {
		return nil, err
	}
	return newService(store, options), nil
}
