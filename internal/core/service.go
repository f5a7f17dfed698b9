package core

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"wastelink/internal/infra/persistence/memory"
	"wastelink/internal/requestid"
	"wastelink/pkg/domain"
)

// backend bundles the store with the observability hooks shared by Service
// and Directory.
type backend struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// Service is the request lifecycle engine. Every check-then-act sequence runs
// inside a single store transaction.
type Service struct {
	*backend
	ids       *requestid.Generator
	directory *Directory
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	return newService(store, resolveOptions(opts))
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	options := resolveOptions(opts)
	store := memory.NewStore(engine, options.storeOptions()...)
	return newService(store, options)
}

func resolveOptions(opts []Option) serviceOptions {
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func newService(store PersistentStore, options serviceOptions) *Service {
	b := &backend{
		store:   store,
		clock:   options.clock,
		logger:  options.logger,
		metrics: options.metrics,
		tracer:  options.tracer,
		audit:   options.audit,
	}
	ids := options.ids
	if ids == nil {
		ids = requestid.New(requestid.WithPrefix(options.idPrefix), requestid.WithClock(options.clock.Now))
	}
	return &Service{backend: b, ids: ids, directory: &Directory{backend: b}}
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Directory returns the account directory sharing this service's store.
func (s *Service) Directory() *Directory { return s.directory }

// Close releases the underlying store after a final persist.
func (s *Service) Close(ctx context.Context) error { return s.store.Close(ctx) }

// run wraps one service operation with tracing, metrics, audit and logging.
// fn returns the id of the entity it touched, if any.
func (b *backend) run(ctx context.Context, op string, entity EntityType, actor string, fn func(context.Context) (string, error)) error {
	started := b.clock.Now()
	ctx, span := b.tracer.Start(ctx, op)
	entityID, err := fn(ctx)
	duration := b.clock.Now().Sub(started)
	span.End(err)
	b.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		Entity:    entity,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		At:        started,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		b.logger.Error("operation failed", "operation", op, "kind", string(domain.KindOf(err)), "error", err)
	} else {
		b.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	}
	b.audit.Record(ctx, entry)
	return err
}

// transact runs fn in a store transaction, logs non-blocking rule findings
// and maps rule violations onto the domain error taxonomy.
func (b *backend) transact(ctx context.Context, fn func(Transaction) error) error {
	res, err := b.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity == SeverityBlock {
			continue
		}
		b.logger.Warn("rule finding", "rule", v.Rule, "severity", string(v.Severity), "entity", string(v.Entity), "entity_id", v.EntityID, "message", v.Message)
	}
	return translateError(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		return err
	}
	for _, v := range violation.Result.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		if v.Rule == RequestLifecycleRuleName {
			return &domain.Error{Kind: domain.KindConflict, Message: v.Message}
		}
		return &domain.Error{Kind: domain.KindInvalidInput, Message: v.Message}
	}
	return &domain.Error{Kind: domain.KindInvalidInput, Message: err.Error()}
}

// ItemInput is one material line of a new request.
type ItemInput struct {
	WasteType Material
	Quantity  float64
}

// CreateRequestInput carries the fields a customer supplies for a pickup.
type CreateRequestInput struct {
	CustomerID          string
	CollectorID         *string
	PickupAddress       string
	PickupCity          string
	PickupDate          string
	PickupTime          string
	SpecialInstructions string
	Items               []ItemInput
}

func (in CreateRequestInput) validate() error {
	if strings.TrimSpace(in.CustomerID) == "" {
		return domain.InvalidInput("customer id is required")
	}
	if len(in.Items) == 0 {
		return domain.InvalidInput("a request needs at least one waste item")
	}
	for i, item := range in.Items {
		if !item.WasteType.Valid() {
			return domain.InvalidInput("item %d: unknown waste type %q", i+1, item.WasteType)
		}
		if !(item.Quantity > 0) || math.IsInf(item.Quantity, 0) {
			return domain.InvalidInput("item %d: quantity must be greater than zero", i+1)
		}
	}
	return nil
}

// CreateRequest stores a pending request and its items and returns it with
// the generated request identifier. Pickup fields are stored with surrounding
// whitespace trimmed.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (WasteRequest, error) {
	var created WasteRequest
	err := s.run(ctx, "create_request", EntityRequest, input.CustomerID, func(ctx context.Context) (string, error) {
		if err := input.validate(); err != nil {
			return "", err
		}
		err := s.transact(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if err := requireCustomer(view, input.CustomerID); err != nil {
				return err
			}
			var collector *string
			if input.CollectorID != nil && strings.TrimSpace(*input.CollectorID) != "" {
				id := strings.TrimSpace(*input.CollectorID)
				if err := requireCollector(view, id); err != nil {
					return err
				}
				collector = &id
			}
			outcome := s.ids.Generate(view.RequestIDExists)
			if outcome.Fallback {
				s.logger.Warn("request id fallback used", "request_id", outcome.ID, "attempts", outcome.Attempts)
			}
			items := make([]WasteItem, 0, len(input.Items))
			for _, item := range input.Items {
				items = append(items, WasteItem{WasteType: item.WasteType, Quantity: item.Quantity})
			}
			var err error
			created, err = tx.CreateRequest(WasteRequest{
				RequestID:           outcome.ID,
				CustomerID:          input.CustomerID,
				CollectorID:         collector,
				PickupAddress:       strings.TrimSpace(input.PickupAddress),
				PickupCity:          strings.TrimSpace(input.PickupCity),
				PickupDate:          strings.TrimSpace(input.PickupDate),
				PickupTime:          strings.TrimSpace(input.PickupTime),
				SpecialInstructions: strings.TrimSpace(input.SpecialInstructions),
				Status:              domain.StatusPending,
				Items:               items,
			})
			return err
		})
		return created.RequestID, err
	})
	if err != nil {
		return WasteRequest{}, err
	}
	return created, nil
}

// AssignCollector claims a pending, unassigned request for collectorID and
// returns the number of requests changed. Zero means the request is missing,
// no longer pending or already claimed; that is not an error.
func (s *Service) AssignCollector(ctx context.Context, id int64, collectorID string) (int, error) {
	var affected int
	err := s.run(ctx, "assign_collector", EntityRequest, collectorID, func(ctx context.Context) (string, error) {
		return formatID(id), s.transact(ctx, func(tx Transaction) error {
			if err := requireCollector(tx.Snapshot(), collectorID); err != nil {
				return err
			}
			var err error
			affected, err = tx.AssignCollector(id, collectorID)
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		s.logger.Info("assignment skipped", "request", id, "collector_id", collectorID)
	}
	return affected, nil
}

type transition struct {
	op   string
	verb string
	from RequestStatus
	to   RequestStatus
}

var (
	acceptTransition   = transition{op: "accept_request", verb: "accept", from: domain.StatusPending, to: domain.StatusInProgress}
	rejectTransition   = transition{op: "reject_request", verb: "reject", from: domain.StatusPending, to: domain.StatusCancelled}
	completeTransition = transition{op: "complete_request", verb: "complete", from: domain.StatusInProgress, to: domain.StatusCompleted}
)

// AcceptRequest moves a pending request assigned to collectorID into progress.
func (s *Service) AcceptRequest(ctx context.Context, id int64, collectorID string) (WasteRequest, error) {
	return s.collectorTransition(ctx, acceptTransition, id, collectorID)
}

// RejectRequest cancels a pending request assigned to collectorID. The
// collector stays recorded on the cancelled request.
func (s *Service) RejectRequest(ctx context.Context, id int64, collectorID string) (WasteRequest, error) {
	return s.collectorTransition(ctx, rejectTransition, id, collectorID)
}

// CompleteRequest marks an in-progress request assigned to collectorID as completed.
func (s *Service) CompleteRequest(ctx context.Context, id int64, collectorID string) (WasteRequest, error) {
	return s.collectorTransition(ctx, completeTransition, id, collectorID)
}

func (s *Service) collectorTransition(ctx context.Context, t transition, id int64, collectorID string) (WasteRequest, error) {
	var updated WasteRequest
	err := s.run(ctx, t.op, EntityRequest, collectorID, func(ctx context.Context) (string, error) {
		return formatID(id), s.transact(ctx, func(tx Transaction) error {
			current, ok := tx.Snapshot().FindRequest(id)
			if !ok {
				return domain.NotFound(EntityRequest, id)
			}
			if !current.AssignedTo(collectorID) {
				return domain.Forbidden("request %s is not assigned to collector %s", current.RequestID, collectorID)
			}
			if current.Status.Normalize() != t.from {
				return domain.Conflict(current.Status.Normalize(), "cannot %s request %s", t.verb, current.RequestID)
			}
			var err error
			updated, err = tx.UpdateRequest(id, func(r *WasteRequest) error {
				r.Status = t.to
				return nil
			})
			return err
		})
	})
	if err != nil {
		return WasteRequest{}, err
	}
	return updated, nil
}

// UpdateStatus is the generic status path available to the owning customer
// and the assigned collector. It only cancels: customers may cancel pending
// or in-progress requests, collectors may drop an in-progress request.
func (s *Service) UpdateStatus(ctx context.Context, id int64, actorID string, status RequestStatus) (WasteRequest, error) {
	var updated WasteRequest
	err := s.run(ctx, "update_status", EntityRequest, actorID, func(ctx context.Context) (string, error) {
		if !status.Valid() {
			return formatID(id), domain.InvalidInput("unknown request status %q", status)
		}
		return formatID(id), s.transact(ctx, func(tx Transaction) error {
			current, ok := tx.Snapshot().FindRequest(id)
			if !ok {
				return domain.NotFound(EntityRequest, id)
			}
			owner := current.CustomerID == actorID
			if !owner && !current.AssignedTo(actorID) {
				return domain.Forbidden("account %s may not change request %s", actorID, current.RequestID)
			}
			if current.Status.Terminal() {
				return domain.Conflict(current.Status, "request %s is closed", current.RequestID)
			}
			if status.Normalize() != domain.StatusCancelled {
				return domain.Forbidden("status %s is only reachable through accept or complete", status)
			}
			if !owner && current.Status.Normalize() == domain.StatusPending {
				return domain.Forbidden("collector %s must reject pending request %s instead of cancelling it", actorID, current.RequestID)
			}
			var err error
			updated, err = tx.UpdateRequest(id, func(r *WasteRequest) error {
				r.Status = domain.StatusCancelled
				return nil
			})
			return err
		})
	})
	if err != nil {
		return WasteRequest{}, err
	}
	return updated, nil
}

// GetRequest returns a request with its items by store id.
func (s *Service) GetRequest(ctx context.Context, id int64) (WasteRequest, error) {
	var found WasteRequest
	err := s.run(ctx, "get_request", EntityRequest, "", func(ctx context.Context) (string, error) {
		return formatID(id), s.store.View(ctx, func(view TransactionView) error {
			r, ok := view.FindRequest(id)
			if !ok {
				return domain.NotFound(EntityRequest, id)
			}
			found = r
			return nil
		})
	})
	if err != nil {
		return WasteRequest{}, err
	}
	return found, nil
}

// GetRequestByRequestID returns a request by its human-readable identifier.
func (s *Service) GetRequestByRequestID(ctx context.Context, requestID string) (WasteRequest, error) {
	var found WasteRequest
	err := s.run(ctx, "get_request_by_request_id", EntityRequest, "", func(ctx context.Context) (string, error) {
		return requestID, s.store.View(ctx, func(view TransactionView) error {
			r, ok := view.FindRequestByRequestID(strings.TrimSpace(requestID))
			if !ok {
				return domain.NotFound(EntityRequest, requestID)
			}
			found = r
			return nil
		})
	})
	if err != nil {
		return WasteRequest{}, err
	}
	return found, nil
}

// ListByCustomer returns the customer's requests newest first, optionally
// restricted to one status.
func (s *Service) ListByCustomer(ctx context.Context, customerID string, status *RequestStatus) ([]WasteRequest, error) {
	filter := domain.RequestFilter{CustomerID: customerID}
	if status != nil {
		filter.Statuses = []RequestStatus{*status}
	}
	return s.list(ctx, "list_by_customer", customerID, filter, newestFirst)
}

// ListAssignedToCollector returns every request assigned to the collector,
// pending first, then in progress, then completed, then the rest; newest
// first within each group.
func (s *Service) ListAssignedToCollector(ctx context.Context, collectorID string) ([]WasteRequest, error) {
	return s.list(ctx, "list_assigned_to_collector", collectorID, domain.RequestFilter{CollectorID: collectorID}, byPriority)
}

// ListPendingForCollector returns the collector's pending requests newest first.
func (s *Service) ListPendingForCollector(ctx context.Context, collectorID string) ([]WasteRequest, error) {
	filter := domain.RequestFilter{CollectorID: collectorID, Statuses: []RequestStatus{domain.StatusPending}}
	return s.list(ctx, "list_pending_for_collector", collectorID, filter, newestFirst)
}

// ListOpenRequests returns unassigned pending requests oldest first. An empty
// city matches every city.
func (s *Service) ListOpenRequests(ctx context.Context, city string) ([]WasteRequest, error) {
	filter := domain.RequestFilter{Unassigned: true, Statuses: []RequestStatus{domain.StatusPending}, City: city}
	return s.list(ctx, "list_open_requests", "", filter, oldestFirst)
}

func (s *Service) list(ctx context.Context, op, actor string, filter domain.RequestFilter, less func(a, b WasteRequest) bool) ([]WasteRequest, error) {
	var out []WasteRequest
	err := s.run(ctx, op, EntityRequest, actor, func(ctx context.Context) (string, error) {
		for _, status := range filter.Statuses {
			if !status.Valid() {
				return "", domain.InvalidInput("unknown request status %q", status)
			}
		}
		return "", s.store.View(ctx, func(view TransactionView) error {
			out = view.ListRequests(filter)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func newestFirst(a, b WasteRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func oldestFirst(a, b WasteRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func byPriority(a, b WasteRequest) bool {
	if pa, pb := a.Status.Priority(), b.Status.Priority(); pa != pb {
		return pa < pb
	}
	return newestFirst(a, b)
}

// QuoteLine prices one item of a request.
type QuoteLine struct {
	WasteType  Material `json:"waste_type"`
	Quantity   float64  `json:"quantity"`
	PricePerKg float64  `json:"price_per_kg"`
	Amount     float64  `json:"amount"`
	Priced     bool     `json:"priced"`
}

// Quote is a collector's estimated payout for a request.
type Quote struct {
	RequestID   string      `json:"request_id"`
	CollectorID string      `json:"collector_id"`
	Lines       []QuoteLine `json:"lines"`
	// TotalQuantity is the request weight in kilograms, priced or not.
	TotalQuantity float64 `json:"total_quantity"`
	Total         float64 `json:"total"`
	// Unpriced lists materials the collector has no price for.
	Unpriced []Material `json:"unpriced,omitempty"`
}

// CollectorQuote estimates what collectorID would pay for the request using
// the collector's price list. Items without a price contribute nothing.
func (s *Service) CollectorQuote(ctx context.Context, id int64, collectorID string) (Quote, error) {
	var quote Quote
	err := s.run(ctx, "collector_quote", EntityRequest, collectorID, func(ctx context.Context) (string, error) {
		return formatID(id), s.store.View(ctx, func(view TransactionView) error {
			req, ok := view.FindRequest(id)
			if !ok {
				return domain.NotFound(EntityRequest, id)
			}
			if err := requireCollector(view, collectorID); err != nil {
				return err
			}
			collector, _ := view.FindAccount(collectorID)
			quote = buildQuote(req, collector)
			return nil
		})
	})
	if err != nil {
		return Quote{}, err
	}
	return quote, nil
}

func buildQuote(req WasteRequest, collector Account) Quote {
	quote := Quote{
		RequestID:     req.RequestID,
		CollectorID:   collector.ID,
		Lines:         make([]QuoteLine, 0, len(req.Items)),
		TotalQuantity: req.TotalQuantity(),
	}
	seen := map[Material]bool{}
	for _, item := range req.Items {
		line := QuoteLine{WasteType: item.WasteType, Quantity: item.Quantity}
		if price, ok := collector.Prices[item.WasteType]; ok {
			line.PricePerKg = price
			line.Amount = roundCents(price * item.Quantity)
			line.Priced = true
			quote.Total += line.Amount
		} else if !seen[item.WasteType] {
			seen[item.WasteType] = true
			quote.Unpriced = append(quote.Unpriced, item.WasteType)
		}
		quote.Lines = append(quote.Lines, line)
	}
	quote.Total = roundCents(quote.Total)
	return quote
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func requireCustomer(view TransactionView, id string) error {
	account, ok := view.FindAccount(id)
	if !ok {
		return domain.NotFound(EntityAccount, id)
	}
	if account.Role != domain.RoleCustomer {
		return domain.InvalidInput("account %s is not a customer", id)
	}
	if !account.Active {
		return domain.Forbidden("customer %s is deactivated", id)
	}
	return nil
}

func requireCollector(view TransactionView, id string) error {
	account, ok := view.FindAccount(id)
	if !ok {
		return domain.NotFound(EntityAccount, id)
	}
	if account.Role != domain.RoleCollector {
		return domain.InvalidInput("account %s is not a collector", id)
	}
	if !account.Active {
		return domain.Forbidden("collector %s is deactivated", id)
	}
	return nil
}
