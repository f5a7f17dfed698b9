package core

import (
	"context"
	"time"

	"wastelink/internal/infra/persistence/memory"
	"wastelink/internal/requestid"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logging surface the service writes to. Key/value
// pairs follow the message.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is ended exactly once with the operation error (nil on success).
type TraceSpan interface {
	End(err error)
}

// Tracer opens a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// AuditStatus classifies an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	EntityID  string
	Actor     string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	At        time.Time
}

// AuditRecorder receives an entry for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	idPrefix   string
	ids        *requestid.Generator
	accountIDs func() string
}

func defaultOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
	}
}

// WithClock overrides the time source used for identifiers and durations.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer attaches a tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder attaches an audit sink.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(o *serviceOptions) {
		if audit != nil {
			o.audit = audit
		}
	}
}

// WithRequestIDPrefix sets the prefix of generated request identifiers.
func WithRequestIDPrefix(prefix string) Option {
	return func(o *serviceOptions) { o.idPrefix = prefix }
}

// WithRequestIDGenerator replaces the identifier generator; the prefix option
// is ignored when one is supplied.
func WithRequestIDGenerator(g *requestid.Generator) Option {
	return func(o *serviceOptions) { o.ids = g }
}

// WithAccountIDFunc overrides how the store mints account ids. The default
// is a random UUID.
func WithAccountIDFunc(fn func() string) Option {
	return func(o *serviceOptions) { o.accountIDs = fn }
}

func (o serviceOptions) storeOptions() []memory.Option {
	return []memory.Option{memory.WithClock(o.clock.Now), memory.WithAccountIDFunc(o.accountIDs)}
}
