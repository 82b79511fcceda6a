package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidLimit is returned when a caller asks for a non-positive limit or
// window.
var ErrInvalidLimit = errors.New("rate limit and window must be positive")

// Bucket identifies one fixed window for one key.
type Bucket struct {
	Key    string
	Start  time.Time
	Window time.Duration
}

// End returns the instant the bucket stops accepting requests.
func (b Bucket) End() time.Time {
	return b.Start.Add(b.Window)
}

// Store holds bucket counters. Implementations must make IncrementIfBelow
// atomic per bucket: concurrent callers may never push a count past limit.
type Store interface {
	// IncrementIfBelow creates the bucket with count 0 if absent, then
	// increments it when the current count is below limit. It returns the
	// count after the call and whether the increment happened.
	IncrementIfBelow(ctx context.Context, b Bucket, limit int) (count int, allowed bool, err error)

	// DeleteExpired removes buckets whose window ended at or before now and
	// reports how many were removed. Stores with native expiry may return 0.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Decision is the result of a single CheckAndConsume call.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// RetryAfter returns how long the caller should wait before the window
// resets, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter is a fixed-window request counter. Windows are aligned to
// floor(now / window), so every key shares the same boundaries.
type Limiter struct {
	store         Store
	logger        *slog.Logger
	now           func() time.Time
	sweepInterval time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSweepInterval sets how often Start runs Sweep. It should match the
// largest window in use. Non-positive values keep the default.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// NewLimiter returns a Limiter backed by store. The sweep is not running
// until Start is called.
func NewLimiter(store Store, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		store:         store,
		logger:        logger.With("component", "rate_limiter"),
		now:           time.Now,
		sweepInterval: time.Hour,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SweepInterval reports how often Start runs Sweep.
func (l *Limiter) SweepInterval() time.Duration {
	return l.sweepInterval
}

// BucketFor returns the bucket that contains t: the window starting at
// floor(unix(t) / window) * window.
func BucketFor(key string, t time.Time, window time.Duration) Bucket {
	ns := t.UnixNano()
	start := time.Unix(0, ns-ns%int64(window)).UTC()
	return Bucket{Key: key, Start: start, Window: window}
}

// CheckAndConsume records one request for key in the current window if the
// window still has room. A rejected request consumes nothing.
func (l *Limiter) CheckAndConsume(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{}, ErrInvalidLimit
	}

	bucket := BucketFor(key, l.now(), window)
	count, allowed, err := l.store.IncrementIfBelow(ctx, bucket, limit)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check for %q: %w", key, err)
	}

	if !allowed {
		l.logger.Debug("rate limit reached",
			"key", key,
			"count", count,
			"limit", limit,
			"reset_at", bucket.End())
	}

	return Decision{
		Allowed: allowed,
		Count:   count,
		Limit:   limit,
		ResetAt: bucket.End(),
	}, nil
}

// Sweep evicts expired buckets once.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	removed, err := l.store.DeleteExpired(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("rate limit sweep: %w", err)
	}
	if removed > 0 {
		l.logger.Debug("evicted expired rate limit buckets", "removed", removed)
	}
	return removed, nil
}

// Start launches the periodic sweep. Calling Start on a running limiter is
// a no-op.
func (l *Limiter) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.running = true

	l.wg.Add(1)
	go l.sweepLoop(l.ctx)

	l.logger.Info("rate limit sweep started", "interval", l.sweepInterval)
}

// Stop cancels the sweep and waits for it to exit.
func (l *Limiter) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.cancel()
	l.running = false
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info("rate limit sweep stopped")
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Sweep(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("rate limit sweep failed", "error", err)
			}
		}
	}
}
