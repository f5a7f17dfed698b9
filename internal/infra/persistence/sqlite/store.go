// Package sqlite provides a SQLite-backed persistent store. Transactions run
// against the in-memory implementation; every commit is written to a
// normalized schema first.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"wastelink/internal/infra/persistence/memory"
	"wastelink/internal/infra/persistence/sqlsnap"
	"wastelink/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "wastelink.db"

// Store is a memory.Store whose persister writes to SQLite.
type Store struct {
	*memory.Store
	persister *sqlsnap.Persister
	path      string
}

// NewStore opens (or creates) the database at path, applies the schema and
// hydrates the in-memory state from it.
func NewStore(ctx context.Context, path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps the per-connection pragmas in effect
	db.SetMaxOpenConns(1)
	persister, err := sqlsnap.New(ctx, db, sqlsnap.SQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem, err := memory.Open(ctx, persister, engine, opts...)
	if err != nil {
		_ = persister.Close()
		return nil, err
	}
	return &Store{Store: mem, persister: persister, path: path}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.persister.DB() }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
