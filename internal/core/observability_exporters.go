package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// PrometheusMetricsRecorder counts service operations and their durations.
// Both collectors are labelled by operation and status (success or error).
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the recorder's collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer. Registering twice against the
// same registry panics, as promauto does.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer, namespace string) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "wastelink"
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation", "status"}),
	}
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
	now     func() time.Time
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to w.
// A nil writer only retains spans for Entries().
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{
		enc: enc,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.now()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	entry := JSONTraceEntry{
		Operation: s.operation,
		Status:    "success",
		StartedAt: s.started,
		EndedAt:   s.tracer.now(),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	entry.DurationMS = float64(entry.EndedAt.Sub(entry.StartedAt)) / float64(time.Millisecond)

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}

// LogrusLogger adapts a logrus logger to the service Logger interface.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps logger; a nil logger uses the logrus standard logger.
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func (l *LogrusLogger) Debug(msg string, keyvals ...any) { l.with(keyvals).Debug(msg) }
func (l *LogrusLogger) Info(msg string, keyvals ...any)  { l.with(keyvals).Info(msg) }
func (l *LogrusLogger) Warn(msg string, keyvals ...any)  { l.with(keyvals).Warn(msg) }
func (l *LogrusLogger) Error(msg string, keyvals ...any) { l.with(keyvals).Error(msg) }

// with turns alternating key/value pairs into logrus fields. A trailing key
// without a value is logged under "extra".
func (l *LogrusLogger) with(keyvals []any) *logrus.Entry {
	if len(keyvals) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			fields["extra"] = keyvals[i]
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if err, isErr := keyvals[i+1].(error); isErr && key == "error" {
			fields[logrus.ErrorKey] = err.Error()
			continue
		}
		fields[key] = keyvals[i+1]
	}
	return l.entry.WithFields(fields)
}

// LogAuditRecorder writes audit entries as structured log lines at info level.
type LogAuditRecorder struct {
	logger Logger
}

// NewLogAuditRecorder returns an AuditRecorder that logs to logger.
func NewLogAuditRecorder(logger Logger) *LogAuditRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogAuditRecorder{logger: logger}
}

// Record implements AuditRecorder.
func (r *LogAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	keyvals := []any{
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"entity_id", entry.EntityID,
		"status", string(entry.Status),
		"duration_ms", float64(entry.Duration) / float64(time.Millisecond),
	}
	if entry.Actor != "" {
		keyvals = append(keyvals, "actor", entry.Actor)
	}
	if entry.Error != "" {
		keyvals = append(keyvals, "error", entry.Error)
	}
	r.logger.Info("audit", keyvals...)
}
