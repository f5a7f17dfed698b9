// Package requestid generates human-readable pickup request identifiers of the
// form PREFIX-YYYYMMDD-XXXXX.
package requestid

import (
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultPrefix is used when no prefix is configured.
	DefaultPrefix = "WR"
	// DefaultMaxAttempts bounds the random candidate loop.
	DefaultMaxAttempts = 10

	suffixLength   = 5
	suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	dateLayout     = "20060102"
)

// ExistsFunc reports whether an identifier is already taken in the store.
type ExistsFunc func(id string) bool

// Outcome is the result of one Generate call.
type Outcome struct {
	ID string
	// Attempts is the number of random candidates tried.
	Attempts int
	// Fallback is true when every random candidate collided and the
	// timestamp-derived identifier was returned instead.
	Fallback bool
}

// Generator produces identifiers unique against an ExistsFunc at generation time.
type Generator struct {
	prefix      string
	maxAttempts int
	now         func() time.Time
	random      func() (string, error)
}

// Option customises a Generator.
type Option func(*Generator)

// WithPrefix overrides the identifier prefix.
func WithPrefix(prefix string) Option {
	return func(g *Generator) {
		if p := strings.ToUpper(strings.TrimSpace(prefix)); p != "" {
			g.prefix = p
		}
	}
}

// WithMaxAttempts overrides the number of random candidates tried before falling back.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithClock overrides the time source used for the date segment.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRandomSource overrides the suffix source; mainly for tests.
func WithRandomSource(fn func() (string, error)) Option {
	return func(g *Generator) {
		if fn != nil {
			g.random = fn
		}
	}
}

// New constructs a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		prefix:      DefaultPrefix,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		random:      randomSuffix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Prefix returns the configured prefix.
func (g *Generator) Prefix() string { return g.prefix }

// Generate returns a candidate that exists does not report as taken, or the
// deterministic fallback once the attempt budget is exhausted. A nil exists
// accepts the first candidate.
func (g *Generator) Generate(exists ExistsFunc) Outcome {
	now := g.now()
	date := now.Format(dateLayout)
	attempts := 0
	for attempts < g.maxAttempts {
		attempts++
		suffix, err := g.random()
		if err != nil || len(suffix) != suffixLength {
			continue
		}
		candidate := g.format(date, suffix)
		if exists == nil || !exists(candidate) {
			return Outcome{ID: candidate, Attempts: attempts}
		}
	}
	return Outcome{ID: g.fallback(now, date), Attempts: attempts, Fallback: true}
}

// fallback uses the low-order digits of the millisecond clock. Two fallbacks in
// the same millisecond would collide; the store's unique index rejects that case.
func (g *Generator) fallback(now time.Time, date string) string {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > suffixLength {
		millis = millis[len(millis)-suffixLength:]
	}
	return g.format(date, strings.Repeat("0", suffixLength-len(millis))+millis)
}

func (g *Generator) format(date, suffix string) string {
	return g.prefix + "-" + date + "-" + suffix
}

func randomSuffix() (string, error) {
	return gonanoid.Generate(suffixAlphabet, suffixLength)
}

// Valid reports whether id has the PREFIX-YYYYMMDD-XXXXX shape.
func Valid(id string) bool {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] == "" {
		return false
	}
	if _, err := time.Parse(dateLayout, parts[1]); err != nil {
		return false
	}
	if len(parts[2]) != suffixLength {
		return false
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune(suffixAlphabet, r) {
			return false
		}
	}
	return true
}
