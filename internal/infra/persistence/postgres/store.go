// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while persisting each commit to a normalized schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"wastelink/internal/infra/persistence/memory"
	"wastelink/internal/infra/persistence/sqlsnap"
	"wastelink/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/wastelink?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	persister *sqlsnap.Persister
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// applies the schema and hydrates the in-memory store from any stored snapshot.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
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
	persister, err := sqlsnap.New(ctx, db, sqlsnap.Postgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem, err := memory.Open(ctx, persister, engine, opts...)
	if err != nil {
		_ = persister.Close()
		return nil, err
	}
	return &Store{Store: mem, persister: persister}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.persister.DB() }

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
