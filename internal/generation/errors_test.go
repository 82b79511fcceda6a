package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"provider error", &ProviderError{Kind: KindQuotaExceeded}, KindQuotaExceeded},
		{"wrapped provider error", fmt.Errorf("call: %w", &ProviderError{Kind: KindAuth}), KindAuth},
		{"parse error", &ParseError{Err: ErrMalformedOutput}, KindParse},
		{"deadline", fmt.Errorf("invoke: %w", context.DeadlineExceeded), KindTimeout},
		{"cancelled", context.Canceled, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindRetryable(t *testing.T) {
	t.Parallel()

	retryable := []Kind{KindQuotaExceeded, KindRateLimited, KindTimeout, KindUnavailable, KindParse}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), k)
	}
	for _, k := range []Kind{KindAuth, KindUnknown} {
		assert.False(t, k.Retryable(), k)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ProviderError{
		Provider:   "groq",
		Model:      "llama-3.3-70b-versatile",
		Kind:       KindRateLimited,
		StatusCode: 429,
		Err:        errors.New("slow down"),
	}
	assert.Equal(t, "groq/llama-3.3-70b-versatile: rate_limited (status 429): slow down", err.Error())
	assert.Equal(t, "gemini: auth", (&ProviderError{Provider: "gemini", Kind: KindAuth}).Error())
}

func TestAggregateError(t *testing.T) {
	t.Parallel()

	empty := &AggregateError{}
	assert.ErrorIs(t, empty, ErrNoProviders)
	assert.Equal(t, ErrNoProviders.Error(), empty.Error())

	interrupted := &AggregateError{Interrupted: context.Canceled}
	assert.NotErrorIs(t, interrupted, ErrNoProviders)
	assert.ErrorIs(t, interrupted, context.Canceled)

	authErr := &ProviderError{Provider: "groq", Kind: KindAuth}
	agg := &AggregateError{Failures: []ProviderFailure{
		{Provider: "groq", Kind: KindAuth, Err: authErr},
		{Provider: "gemini", Kind: KindTimeout, Err: &ProviderError{Provider: "gemini", Kind: KindTimeout}},
	}}
	assert.Equal(t, "all providers failed (groq: auth, gemini: timeout)", agg.Error())
	assert.True(t, agg.HasKind(KindAuth))
	assert.False(t, agg.HasKind(KindParse))
	assert.NotErrorIs(t, agg, ErrNoProviders)

	var pe *ProviderError
	assert.True(t, errors.As(agg, &pe))
	assert.Same(t, authErr, pe)
}

func TestErrorRetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code       ErrorCode
		retryAfter time.Duration
		hasHint    bool
		seconds    int
	}{
		{CodeRateLimitExceeded, 1500 * time.Millisecond, true, 2},
		{CodeAPIRateLimit, 30 * time.Second, true, 30},
		{CodeQuotaExceeded, 0, true, 0},
		{CodeRateLimitExceeded, -time.Second, true, 0},
		{CodeValidation, 0, false, 0},
		{CodeParseError, 0, false, 0},
	}

	for _, tt := range tests {
		e := &Error{Code: tt.code, Message: "m", RetryAfter: tt.retryAfter}
		assert.Equal(t, tt.hasHint, e.HasRetryAfter(), tt.code)
		assert.Equal(t, tt.seconds, e.RetryAfterSeconds(), tt.code)
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := &AggregateError{}
	e := &Error{Code: CodeServiceNotConfigured, Message: "No AI provider is configured.", Err: cause}

	assert.ErrorIs(t, e, ErrNoProviders)
	assert.Contains(t, e.Error(), "SERVICE_NOT_CONFIGURED")
	assert.Equal(t, "VALIDATION_ERROR: bad", (&Error{Code: CodeValidation, Message: "bad"}).Error())
}
