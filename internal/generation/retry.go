package generation

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the attempts made against a single provider.
type RetryPolicy struct {
	// MaxAttempts includes the first call. Values below 1 are treated as 1.
	MaxAttempts int
	// BaseDelay is the linear backoff unit: attempt n+1 starts n*BaseDelay
	// after attempt n failed.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns two attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}
}

// RetryAttempt describes one call made by Retry.
type RetryAttempt struct {
	Attempt int
	// Delay is the backoff waited before this attempt.
	Delay time.Duration
	Err   error
}

// linearBackOff waits n*base before the n-th retry.
type linearBackOff struct {
	base time.Duration
	n    int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.base
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.StopBackOff{}
	// WithMaxRetries treats 0 as unlimited, so a single attempt needs
	// StopBackOff instead.
	if p.MaxAttempts > 1 {
		b = backoff.WithMaxRetries(&linearBackOff{base: p.BaseDelay}, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Retry calls op until it succeeds, returns a non-retryable error, runs out
// of attempts, or ctx is done. The returned error is the last error from op,
// or the context error if ctx ended while waiting. Backoff sleeps honour ctx.
func Retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	op func(ctx context.Context, attempt int) (T, error),
) (T, []RetryAttempt, error) {
	var (
		attempts  []RetryAttempt
		nextDelay time.Duration
	)

	operation := func() (T, error) {
		n := len(attempts) + 1
		delay := nextDelay
		nextDelay = 0

		v, err := op(ctx, n)
		attempts = append(attempts, RetryAttempt{Attempt: n, Delay: delay, Err: err})
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(_ error, d time.Duration) {
		nextDelay = d
	}

	v, err := backoff.RetryNotifyWithData(operation, policy.backOff(ctx), notify)
	return v, attempts, err
}
