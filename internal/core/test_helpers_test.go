package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wastelink/internal/infra/persistence/memory"
	"wastelink/pkg/domain"
)

type memorySnapshot = memory.Snapshot

func strPtr(v string) *string { return &v }

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

// stepClock advances by step on every reading so records get distinct timestamps.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: fixedNow, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type logEntry struct {
	level   string
	msg     string
	keyvals []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, keyvals []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, keyvals: keyvals})
}

func (l *captureLogger) Debug(msg string, keyvals ...any) { l.add("debug", msg, keyvals) }
func (l *captureLogger) Info(msg string, keyvals ...any)  { l.add("info", msg, keyvals) }
func (l *captureLogger) Warn(msg string, keyvals ...any)  { l.add("warn", msg, keyvals) }
func (l *captureLogger) Error(msg string, keyvals ...any) { l.add("error", msg, keyvals) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && (msg == "" || e.msg == msg) {
			n++
		}
	}
	return n
}

type fixture struct {
	svc       *Service
	customer  Account
	collector Account
	rival     Account
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	svc := NewInMemoryService(NewDefaultRulesEngine(), opts...)
	return seedFixture(t, svc)
}

func seedFixture(t *testing.T, svc *Service) fixture {
	t.Helper()
	ctx := context.Background()
	dir := svc.Directory()
	customer, err := dir.RegisterAccount(ctx, RegisterAccountInput{Role: domain.RoleCustomer, Name: "Ada Obi", Email: "ada@example.com", City: "Lagos"})
	if err != nil {
		t.Fatalf("register customer: %v", err)
	}
	collector, err := dir.RegisterAccount(ctx, RegisterAccountInput{
		Role:   domain.RoleCollector,
		Name:   "GreenCycle",
		Email:  "ops@greencycle.example",
		City:   "Lagos",
		Prices: map[Material]float64{domain.MaterialPlastic: 12.5, domain.MaterialMetal: 40},
	})
	if err != nil {
		t.Fatalf("register collector: %v", err)
	}
	rival, err := dir.RegisterAccount(ctx, RegisterAccountInput{Role: domain.RoleCollector, Name: "ScrapKings", Email: "hello@scrapkings.example"})
	if err != nil {
		t.Fatalf("register rival collector: %v", err)
	}
	return fixture{svc: svc, customer: customer, collector: collector, rival: rival}
}

func (f fixture) createRequest(t *testing.T, city string) WasteRequest {
	t.Helper()
	req, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{
		CustomerID:    f.customer.ID,
		PickupAddress: "12 Marina Rd",
		PickupCity:    city,
		PickupDate:    "2026-10-20",
		PickupTime:    "morning",
		Items: []ItemInput{
			{WasteType: domain.MaterialPlastic, Quantity: 4},
			{WasteType: domain.MaterialGlass, Quantity: 1.5},
		},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func (f fixture) assign(t *testing.T, id int64, collectorID string) {
	t.Helper()
	n, err := f.svc.AssignCollector(context.Background(), id, collectorID)
	if err != nil {
		t.Fatalf("assign collector: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one assignment, got %d", n)
	}
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %q (%v)", kind, got, err)
	}
}

var errSaveFailed = errors.New("disk full")

// flakyPersister keeps the last saved snapshot and fails saves on demand.
type flakyPersister struct {
	mu       sync.Mutex
	snapshot *memorySnapshot
	fail     bool
	saves    int
}

func (p *flakyPersister) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *flakyPersister) Load(context.Context) (memorySnapshot, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot == nil {
		return memorySnapshot{}, false, nil
	}
	return *p.snapshot, true, nil
}

func (p *flakyPersister) Save(_ context.Context, s memorySnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errSaveFailed
	}
	p.saves++
	p.snapshot = &s
	return nil
}

func (p *flakyPersister) Close() error { return nil }
