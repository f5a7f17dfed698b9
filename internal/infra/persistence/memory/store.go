// Package memory provides the in-memory implementation of the wastelink
// persistence store. The whole dataset lives in process memory behind a single
// lock; an optional Persister receives a full snapshot before every commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wastelink/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Account aliases domain.Account for in-memory persistence operations.
	Account = domain.Account
	// WasteRequest aliases domain.WasteRequest.
	WasteRequest = domain.WasteRequest
	// WasteItem aliases domain.WasteItem.
	WasteItem = domain.WasteItem
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Persister is the durable side of the store. Save receives the complete
// dataset and must overwrite whatever was stored before.
type Persister interface {
	// Load returns the stored snapshot; ok is false when nothing was stored yet.
	Load(ctx context.Context) (snapshot Snapshot, ok bool, err error)
	Save(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// Store provides an in-memory transactional store for the wastelink domain.
type Store struct {
	mu        sync.RWMutex
	state     memoryState
	engine    *RulesEngine
	nowFn     func() time.Time
	idFn      func() string
	persister Persister
	closed    bool
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithAccountIDFunc overrides account id generation.
func WithAccountIDFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.idFn = fn
		}
	}
}

// WithPersister attaches a durable backend. NewStore does not load from it; use Open.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open constructs a store bound to persister and hydrates it from the stored
// snapshot when one exists. A nil persister yields an ephemeral store.
func Open(ctx context.Context, persister Persister, engine *RulesEngine, opts ...Option) (*Store, error) {
	s := NewStore(engine, append(opts, WithPersister(persister))...)
	if persister == nil {
		return s, nil
	}
	snapshot, ok, err := persister.Load(ctx)
	if err != nil {
		return nil, domain.StorageFailure("load snapshot", err)
	}
	if ok {
		s.state = memoryStateFromSnapshot(snapshot)
	}
	return s, nil
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("memory store closed")

// RunInTransaction executes fn against a private copy of the state while
// holding the write lock. When fn succeeds, rules pass and at least one change
// was recorded, the candidate state is handed to the persister; it replaces
// the live state only after the persister accepted it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{}, domain.StorageFailure("run transaction", ErrClosed)
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if len(tx.changes) == 0 {
		return result, nil
	}
	if s.persister != nil {
		if err := s.persister.Save(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, domain.StorageFailure("persist snapshot", err)
		}
	}
	s.state = tx.state
	return result, nil
}

// View runs fn against a cloned snapshot under the read lock.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// Persist writes the current state through the persister regardless of pending changes.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, snapshotFromMemoryState(s.state)); err != nil {
		return domain.StorageFailure("persist snapshot", err)
	}
	return nil
}

// Close performs a final persist and releases the persister. Further
// transactions fail; Close is idempotent.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.persister == nil {
		return nil
	}
	persistErr := s.persistLocked(ctx)
	closeErr := s.persister.Close()
	if persistErr != nil {
		return persistErr
	}
	if closeErr != nil {
		return domain.StorageFailure("close persister", closeErr)
	}
	return nil
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(id string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.accounts[id]
	if !ok {
		return Account{}, false
	}
	return cloneAccount(a), true
}

// GetRequest returns a request with its items.
func (s *Store) GetRequest(id int64) (WasteRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.requests[id]
	if !ok {
		return WasteRequest{}, false
	}
	return s.state.decorateRequest(r), true
}

// ListRequests returns all requests matching filter ordered by id.
func (s *Store) ListRequests(filter domain.RequestFilter) []WasteRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequests(&s.state, filter)
}

func listRequests(state *memoryState, filter domain.RequestFilter) []WasteRequest {
	out := make([]WasteRequest, 0)
	for _, r := range state.requests {
		if filter.Matches(r) {
			out = append(out, state.decorateRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listAccounts(state *memoryState, filter domain.AccountFilter) []Account {
	out := make([]Account, 0)
	for _, a := range state.accounts {
		if filter.Matches(a) {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
