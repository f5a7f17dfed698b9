package memory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"wastelink/pkg/domain"
)

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) FindAccount(id string) (Account, bool) {
	a, ok := v.state.accounts[id]
	if !ok {
		return Account{}, false
	}
	return cloneAccount(a), true
}

func (v transactionView) ListAccounts(filter domain.AccountFilter) []Account {
	return listAccounts(v.state, filter)
}

func (v transactionView) FindRequest(id int64) (WasteRequest, bool) {
	r, ok := v.state.requests[id]
	if !ok {
		return WasteRequest{}, false
	}
	return v.state.decorateRequest(r), true
}

func (v transactionView) FindRequestByRequestID(requestID string) (WasteRequest, bool) {
	id, ok := v.state.requestIDs[requestID]
	if !ok {
		return WasteRequest{}, false
	}
	return v.FindRequest(id)
}

func (v transactionView) RequestIDExists(requestID string) bool {
	_, ok := v.state.requestIDs[requestID]
	return ok
}

func (v transactionView) ListRequests(filter domain.RequestFilter) []WasteRequest {
	return listRequests(v.state, filter)
}

func (tx *transaction) recordChange(change Change) { tx.changes = append(tx.changes, change) }

// Snapshot exposes the transaction's working copy, including its own writes.
func (tx *transaction) Snapshot() TransactionView { return newTransactionView(&tx.state) }

func (tx *transaction) CreateAccount(a Account) (Account, error) {
	if a.ID == "" {
		a.ID = tx.store.idFn()
	}
	if _, exists := tx.state.accounts[a.ID]; exists {
		return Account{}, &domain.Error{Kind: domain.KindConflict, Message: fmt.Sprintf("account %q already exists", a.ID)}
	}
	if err := validateAccount(a); err != nil {
		return Account{}, err
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.accounts[a.ID] = cloneAccount(a)
	tx.recordChange(Change{Entity: domain.EntityAccount, Action: domain.ActionCreate, After: cloneAccount(a)})
	return cloneAccount(a), nil
}

func (tx *transaction) UpdateAccount(id string, mutator func(*Account) error) (Account, error) {
	current, ok := tx.state.accounts[id]
	if !ok {
		return Account{}, domain.NotFound(domain.EntityAccount, id)
	}
	before := cloneAccount(current)
	if err := mutator(&current); err != nil {
		return Account{}, err
	}
	current.ID = id
	current.Role = before.Role
	current.CreatedAt = before.CreatedAt
	if err := validateAccount(current); err != nil {
		return Account{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.accounts[id] = cloneAccount(current)
	tx.recordChange(Change{Entity: domain.EntityAccount, Action: domain.ActionUpdate, Before: before, After: cloneAccount(current)})
	return cloneAccount(current), nil
}

func validateAccount(a Account) error {
	if !a.Role.Valid() {
		return domain.InvalidInput("account role %q is not one of customer, collector", a.Role)
	}
	if len(a.Prices) > 0 && a.Role != domain.RoleCollector {
		return domain.InvalidInput("only collectors may carry a price list")
	}
	for material, price := range a.Prices {
		if !material.Valid() {
			return domain.InvalidInput("unknown material %q in price list", material)
		}
		if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return domain.InvalidInput("price for %s must be a non-negative number", material)
		}
	}
	return nil
}

func (tx *transaction) CreateRequest(r WasteRequest) (WasteRequest, error) {
	if err := validateItems(r.Items); err != nil {
		return WasteRequest{}, err
	}
	r.RequestID = strings.TrimSpace(r.RequestID)
	if r.RequestID == "" {
		return WasteRequest{}, domain.InvalidInput("request identifier is required")
	}
	if _, taken := tx.state.requestIDs[r.RequestID]; taken {
		return WasteRequest{}, &domain.Error{
			Kind:    domain.KindConflict,
			Message: fmt.Sprintf("request identifier %s already exists", r.RequestID),
			Err:     domain.ErrDuplicateRequestID,
		}
	}
	if _, ok := tx.state.accounts[r.CustomerID]; !ok {
		return WasteRequest{}, domain.NotFound(domain.EntityAccount, r.CustomerID)
	}
	if r.CollectorID != nil {
		if _, ok := tx.state.accounts[*r.CollectorID]; !ok {
			return WasteRequest{}, domain.NotFound(domain.EntityAccount, *r.CollectorID)
		}
	}
	if r.Status == "" {
		r.Status = domain.StatusPending
	}
	if !r.Status.Valid() {
		return WasteRequest{}, domain.InvalidInput("unknown request status %q", r.Status)
	}

	r.ID = tx.state.nextRequestID
	tx.state.nextRequestID++
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now

	items := r.Items
	r.Items = nil
	tx.state.requests[r.ID] = cloneRequest(r)
	tx.state.requestIDs[r.RequestID] = r.ID
	for _, item := range items {
		item.ID = tx.state.nextItemID
		tx.state.nextItemID++
		item.RequestID = r.ID
		tx.state.items[item.ID] = item
		tx.state.itemsByRequest[r.ID] = append(tx.state.itemsByRequest[r.ID], item.ID)
		tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: item})
	}
	created := tx.state.decorateRequest(tx.state.requests[r.ID])
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionCreate, After: created})
	return cloneRequest(created), nil
}

func validateItems(items []WasteItem) error {
	if len(items) == 0 {
		return domain.InvalidInput("a request needs at least one waste item")
	}
	for i, item := range items {
		if !item.WasteType.Valid() {
			return domain.InvalidInput("item %d: unknown waste type %q", i+1, item.WasteType)
		}
		if !(item.Quantity > 0) || math.IsInf(item.Quantity, 0) {
			return domain.InvalidInput("item %d: quantity must be greater than zero, got %s", i+1, strconv.FormatFloat(item.Quantity, 'f', -1, 64))
		}
	}
	return nil
}

// UpdateRequest applies mutator to a copy of the request. Identity fields and
// items are restored after the mutator runs; only the collector, pickup
// details, status and instructions can change.
func (tx *transaction) UpdateRequest(id int64, mutator func(*WasteRequest) error) (WasteRequest, error) {
	stored, ok := tx.state.requests[id]
	if !ok {
		return WasteRequest{}, domain.NotFound(domain.EntityRequest, id)
	}
	before := tx.state.decorateRequest(stored)
	current := cloneRequest(before)
	if err := mutator(&current); err != nil {
		return WasteRequest{}, err
	}
	if !current.Status.Valid() {
		return WasteRequest{}, domain.InvalidInput("unknown request status %q", current.Status)
	}
	current.ID = id
	current.RequestID = before.RequestID
	current.CustomerID = before.CustomerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Items = nil
	tx.state.requests[id] = cloneRequest(current)
	after := tx.state.decorateRequest(tx.state.requests[id])
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: before, After: after})
	return cloneRequest(after), nil
}

// AssignCollector mirrors UPDATE ... WHERE id = ? AND status = 'pending' AND
// collector_id IS NULL and reports the affected row count.
func (tx *transaction) AssignCollector(id int64, collectorID string) (int, error) {
	current, ok := tx.state.requests[id]
	if !ok {
		return 0, nil
	}
	if current.Status != domain.StatusPending || current.CollectorID != nil {
		return 0, nil
	}
	if _, ok := tx.state.accounts[collectorID]; !ok {
		return 0, domain.NotFound(domain.EntityAccount, collectorID)
	}
	before := tx.state.decorateRequest(current)
	assigned := collectorID
	current.CollectorID = &assigned
	current.UpdatedAt = tx.now
	tx.state.requests[id] = cloneRequest(current)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: before, After: tx.state.decorateRequest(current)})
	return 1, nil
}
