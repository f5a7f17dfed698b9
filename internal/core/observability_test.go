package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"wastelink/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestServiceObservability(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}

	f := newFixture(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
		WithClock(newStepClock(time.Millisecond)),
	)
	if !audit.has("register_account", AuditStatusSuccess, func(e AuditEntry) bool { return e.EntityID == f.customer.ID }) {
		t.Fatalf("expected audit entry for register_account success")
	}

	req := f.createRequest(t, "Lagos")
	if !audit.has("create_request", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == req.RequestID && e.Actor == f.customer.ID && e.Entity == EntityRequest && e.Duration > 0
	}) {
		t.Fatalf("expected audit entry for create_request success")
	}

	if _, err := f.svc.CompleteRequest(ctx, req.ID, f.collector.ID); err == nil {
		t.Fatalf("expected complete_request to fail on an unassigned request")
	}
	if !audit.has("complete_request", AuditStatusError, func(e AuditEntry) bool { return e.Error != "" }) {
		t.Fatalf("expected audit error entry for complete_request")
	}
	if !metrics.has("complete_request", false) || !metrics.has("create_request", true) {
		t.Fatalf("expected metrics for both outcomes, got %+v", metrics.calls)
	}
	if !tracer.has("complete_request", false) || !tracer.has("create_request", true) {
		t.Fatalf("expected trace spans for both outcomes")
	}
	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("every span must be ended: %d started, %d ended", len(tracer.started), len(tracer.ended))
	}
	if logger.count("error", "operation failed") != 1 {
		t.Fatalf("expected one failure log")
	}
	if logger.count("debug", "operation completed") == 0 {
		t.Fatalf("expected debug logs for successful operations")
	}
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	svc := NewInMemoryService(NewRulesEngine(), nil, WithLogger(nil), WithMetricsRecorder(nil), WithTracer(nil), WithAuditRecorder(nil), WithClock(nil))
	if _, err := svc.Directory().RegisterAccount(context.Background(), RegisterAccountInput{Role: domain.RoleCustomer, Name: "A", Email: "a@example.com"}); err != nil {
		t.Fatalf("register with default hooks: %v", err)
	}
	if svc.ids.Prefix() != "WR" {
		t.Fatalf("expected default prefix, got %s", svc.ids.Prefix())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(reg, "")
	f := newFixture(t, WithMetricsRecorder(rec))
	req := f.createRequest(t, "Lagos")
	f.assign(t, req.ID, f.collector.ID)
	if _, err := f.svc.CompleteRequest(context.Background(), req.ID, f.collector.ID); err == nil {
		t.Fatalf("expected conflict")
	}
	rec.Observe(context.Background(), "", true, time.Second)

	if got := testutil.ToFloat64(rec.operations.WithLabelValues("create_request", "success")); got != 1 {
		t.Fatalf("expected one successful create, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("register_account", "success")); got != 3 {
		t.Fatalf("expected three registrations, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("complete_request", "error")); got != 1 {
		t.Fatalf("expected one failed completion, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations, "wastelink_service_operation_duration_seconds"); n != 4 {
		t.Fatalf("expected four duration series, got %d", n)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("expected two metric families, got %d", len(families))
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "accept_request")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "reject_request")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != "success" || entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two JSON lines, got %q", buf.String())
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if decoded.Operation != "reject_request" {
		t.Fatalf("unexpected operation %s", decoded.Operation)
	}

	silent := NewJSONTracer(nil)
	_, span = silent.Start(context.Background(), "noop")
	span.End(nil)
	if len(silent.Entries()) != 1 {
		t.Fatalf("tracer without writer must still retain spans")
	}
}

func TestLogrusLogger(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	logger := NewLogrusLogger(base)

	logger.Error("operation failed", "operation", "assign_collector", "error", errSaveFailed, "odd")
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Message != "operation failed" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Data["operation"] != "assign_collector" || entry.Data[logrus.ErrorKey] != errSaveFailed.Error() || entry.Data["extra"] != "odd" {
		t.Fatalf("unexpected fields %+v", entry.Data)
	}

	logger.Debug("operation completed")
	logger.Info("assignment skipped", 42, "x")
	logger.Warn("rule finding", "rule", PriceCoverageRuleName)
	if len(hook.Entries) != 4 {
		t.Fatalf("expected four entries, got %d", len(hook.Entries))
	}
	if hook.Entries[2].Data["42"] != "x" {
		t.Fatalf("non-string keys must be stringified, got %+v", hook.Entries[2].Data)
	}
	if NewLogrusLogger(nil) == nil {
		t.Fatalf("nil logger must fall back to the standard logger")
	}
}

func TestLogAuditRecorder(t *testing.T) {
	logger := &captureLogger{}
	f := newFixture(t, WithAuditRecorder(NewLogAuditRecorder(logger)))
	if _, err := f.svc.AcceptRequest(context.Background(), 12, f.collector.ID); err == nil {
		t.Fatalf("expected not found")
	}
	if logger.count("info", "audit") != 4 {
		t.Fatalf("expected one audit line per operation, got %d", logger.count("info", "audit"))
	}
	last := logger.entries[len(logger.entries)-1]
	fields := map[string]any{}
	for i := 0; i+1 < len(last.keyvals); i += 2 {
		fields[last.keyvals[i].(string)] = last.keyvals[i+1]
	}
	if fields["operation"] != "accept_request" || fields["status"] != string(AuditStatusError) || fields["actor"] != f.collector.ID {
		t.Fatalf("unexpected audit fields %v", fields)
	}
	NewLogAuditRecorder(nil).Record(context.Background(), AuditEntry{Operation: "noop"})
}
