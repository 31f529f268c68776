package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDatabaseUnavailable is returned by [BreakerDB] when the database circuit
// is open and calls are being rejected without reaching the pool.
var ErrDatabaseUnavailable = errors.New("store: database circuit open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [BreakerDB]. Zero-value fields get defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive database failures before the
	// circuit opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probe calls are
	// allowed through again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probe calls required to close
	// the circuit again. Default: 3.
	HalfOpenMax int
}

// BreakerDB wraps a [DB] with a three-state circuit breaker
// (closed, open, half-open). When the database fails repeatedly the circuit
// opens and queries fail fast with [ErrDatabaseUnavailable] instead of piling
// up on a dead pool. After the reset timeout a limited number of probe calls
// decide whether the circuit closes again.
//
// A pgx.ErrNoRows result is a successful round trip, not a failure; the same
// goes for context cancellation, which says nothing about database health.
//
// Safe for concurrent use.
type BreakerDB struct {
	db DB

	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

var _ DB = (*BreakerDB)(nil)

// NewBreakerDB wraps db in a circuit breaker.
func NewBreakerDB(db DB, cfg BreakerConfig) *BreakerDB {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &BreakerDB{
		db:           db,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        breakerClosed,
	}
}

// Exec implements [DB].
func (b *BreakerDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := b.allow(); err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := b.db.Exec(ctx, sql, args...)
	b.observe(err)
	return tag, err
}

// Query implements [DB].
func (b *BreakerDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	rows, err := b.db.Query(ctx, sql, args...)
	b.observe(err)
	return rows, err
}

// QueryRow implements [DB]. The breaker outcome is recorded when the returned
// row is scanned, since pgx surfaces QueryRow errors there.
func (b *BreakerDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if err := b.allow(); err != nil {
		return errRow{err: err}
	}
	return breakerRow{row: b.db.QueryRow(ctx, sql, args...), breaker: b}
}

// Healthy reports whether the circuit currently admits calls. Suitable as a
// readiness signal alongside a pool ping.
func (b *BreakerDB) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != breakerOpen || time.Since(b.lastFailure) >= b.resetTimeout
}

// allow checks whether a call may proceed, handling the open → half-open
// transition and the probe budget.
func (b *BreakerDB) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailure) < b.resetTimeout {
			return ErrDatabaseUnavailable
		}
		b.state = breakerHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("database circuit half-open, probing")
	case breakerHalfOpen:
		if b.probes >= b.halfOpenMax {
			return ErrDatabaseUnavailable
		}
	}

	if b.state == breakerHalfOpen {
		b.probes++
	}
	return nil
}

// observe records the outcome of a call that allow admitted.
func (b *BreakerDB) observe(err error) {
	failed := err != nil &&
		!errors.Is(err, pgx.ErrNoRows) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)

	b.mu.Lock()
	defer b.mu.Unlock()

	if failed {
		b.lastFailure = time.Now()
		if b.state == breakerHalfOpen {
			b.probeFails++
			b.state = breakerOpen
			b.failures = b.maxFailures
			slog.Warn("database circuit re-opened", "error", err)
			return
		}
		b.failures++
		if b.failures >= b.maxFailures {
			b.state = breakerOpen
			slog.Warn("database circuit opened",
				"consecutive_failures", b.failures, "error", err)
		}
		return
	}

	if b.state == breakerHalfOpen {
		if b.probes-b.probeFails >= b.halfOpenMax {
			b.state = breakerClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("database circuit closed")
		}
		return
	}
	b.failures = 0
}

// errRow satisfies pgx.Row for calls rejected while the circuit is open.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// breakerRow defers outcome accounting to Scan time.
type breakerRow struct {
	row     pgx.Row
	breaker *BreakerDB
}

func (r breakerRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	r.breaker.observe(err)
	return err
}
