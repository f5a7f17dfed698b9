package domain

import (
	"context"
	"strings"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateAccount(Account) (Account, error)
	UpdateAccount(id string, mutator func(*Account) error) (Account, error)
	// CreateRequest inserts the request and all of its items, assigning
	// numeric ids to both. The returned request carries the stored items.
	CreateRequest(WasteRequest) (WasteRequest, error)
	UpdateRequest(id int64, mutator func(*WasteRequest) error) (WasteRequest, error)
	// AssignCollector sets the collector of a pending, unassigned request and
	// returns the number of affected rows (0 or 1).
	AssignCollector(id int64, collectorID string) (int, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ListAccounts(filter AccountFilter) []Account
	FindRequestByRequestID(requestID string) (WasteRequest, bool)
	RequestIDExists(requestID string) bool
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
	Close(ctx context.Context) error
}

// AccountFilter narrows ListAccounts. Zero values match everything.
type AccountFilter struct {
	Role       Role
	ActiveOnly bool
}

// Matches reports whether the account satisfies the filter.
func (f AccountFilter) Matches(a Account) bool {
	if f.Role != "" && a.Role != f.Role {
		return false
	}
	if f.ActiveOnly && !a.Active {
		return false
	}
	return true
}

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	CustomerID  string
	CollectorID string
	// Unassigned restricts results to requests without a collector.
	Unassigned bool
	Statuses   []RequestStatus
	City       string
}

// Matches reports whether the request satisfies the filter.
func (f RequestFilter) Matches(r WasteRequest) bool {
	if f.CustomerID != "" && r.CustomerID != f.CustomerID {
		return false
	}
	if f.CollectorID != "" && !r.AssignedTo(f.CollectorID) {
		return false
	}
	if f.Unassigned && r.CollectorID != nil {
		return false
	}
	if f.City != "" && !strings.EqualFold(strings.TrimSpace(r.PickupCity), strings.TrimSpace(f.City)) {
		return false
	}
	if len(f.Statuses) > 0 {
		status := r.Status.Normalize()
		for _, s := range f.Statuses {
			if s.Normalize() == status {
				return true
			}
		}
		return false
	}
	return true
}
