package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors returned by the generation package
var (
	// ErrNoProviders is matched by an AggregateError that recorded no
	// failures because no provider was configured.
	ErrNoProviders = errors.New("no generation provider configured")

	// ErrMalformedOutput means no repair strategy produced syntactically
	// valid JSON from the model output.
	ErrMalformedOutput = errors.New("model output is not valid JSON")

	// ErrShapeMismatch means the model output parsed but does not have the
	// structure the task expects.
	ErrShapeMismatch = errors.New("model output has the wrong shape")

	// ErrEmptyResponse is returned by adapters when a provider answers
	// without any text.
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrContentBlocked is returned when a provider refuses the prompt on
	// safety grounds.
	ErrContentBlocked = errors.New("content blocked by provider safety filters")
)

// Kind classifies a provider-side failure.
type Kind string

// Failure kinds.
const (
	KindAuth          Kind = "auth"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindRateLimited   Kind = "rate_limited"
	KindTimeout       Kind = "timeout"
	KindUnavailable   Kind = "unavailable"
	KindParse         Kind = "parse"
	KindUnknown       Kind = "unknown"
)

// Retryable reports whether another attempt against the same provider can
// reasonably succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindQuotaExceeded, KindRateLimited, KindTimeout, KindUnavailable, KindParse:
		return true
	default:
		return false
	}
}

// ProviderError is the uniform failure returned by every provider adapter.
type ProviderError struct {
	Provider   string
	Model      string
	Kind       Kind
	StatusCode int
	// RetryAfter is the provider's own wait hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Model != "" {
		b.WriteString("/")
		b.WriteString(e.Model)
	}
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ParseError is returned by Normalize. Excerpt holds a bounded prefix of the
// offending output, never the whole text.
type ParseError struct {
	Shape   Shape
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v (output starts %q)", e.Shape, e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// KindOf classifies any error produced while invoking a provider.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return KindParse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable reports whether err warrants another attempt.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// retryAfterHint returns the provider's wait hint carried by err, if any.
func retryAfterHint(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// ProviderFailure records why one provider in the chain gave up.
type ProviderFailure struct {
	Provider string
	Kind     Kind
	Err      error
	Attempts []RetryAttempt
}

// AggregateError is returned by the orchestrator when no provider produced a
// usable result. Failures preserve chain order.
type AggregateError struct {
	Failures []ProviderFailure
	// Interrupted is the context error that stopped the chain early, if any.
	Interrupted error
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 0 {
		if e.Interrupted != nil {
			return "generation interrupted: " + e.Interrupted.Error()
		}
		return ErrNoProviders.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, f.Kind))
	}
	msg := "all providers failed (" + strings.Join(parts, ", ") + ")"
	if e.Interrupted != nil {
		msg += ": " + e.Interrupted.Error()
	}
	return msg
}

// Is matches ErrNoProviders when the chain was empty.
func (e *AggregateError) Is(target error) bool {
	return target == ErrNoProviders && len(e.Failures) == 0 && e.Interrupted == nil
}

// Unwrap exposes every provider error plus the interruption cause.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	if e.Interrupted != nil {
		errs = append(errs, e.Interrupted)
	}
	return errs
}

// HasKind reports whether any provider failed with kind k.
func (e *AggregateError) HasKind(k Kind) bool {
	for _, f := range e.Failures {
		if f.Kind == k {
			return true
		}
	}
	return false
}

// ErrorCode is the stable, caller-facing failure category.
type ErrorCode string

// Caller-facing error codes.
const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInvalidAPIKey        ErrorCode = "INVALID_API_KEY"
	CodeAPIRateLimit         ErrorCode = "API_RATE_LIMIT"
	CodeQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"
	CodeParseError           ErrorCode = "PARSE_ERROR"
	CodeProviderUnavailable  ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeServiceNotConfigured ErrorCode = "SERVICE_NOT_CONFIGURED"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Error is the single classified failure the Service returns. Message is
// safe to show to end users.
type Error struct {
	Code       ErrorCode
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HasRetryAfter reports whether the code carries a wait hint for the caller.
func (e *Error) HasRetryAfter() bool {
	switch e.Code {
	case CodeRateLimitExceeded, CodeAPIRateLimit, CodeQuotaExceeded:
		return true
	default:
		return false
	}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never negative.
func (e *Error) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}
