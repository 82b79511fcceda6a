package generation

import (
	"context"
	"time"
)

// Provider is the boundary between the orchestration core and one hosted
// LLM service. Adapters live under internal/platform.
type Provider interface {
	// Name identifies the provider in logs, metrics and responses.
	Name() string

	// Invoke sends the prompt and returns the raw text of the answer. Every
	// failure is a *ProviderError so the retry policy can classify it. An
	// adapter configured with several models tries them in order and
	// returns the last error if all fail.
	Invoke(ctx context.Context, spec PromptSpec, maxOutputTokens int) (ProviderResult, error)
}

// Recorder receives generation telemetry. The zero-cost default discards
// everything; internal/metrics provides a Prometheus implementation.
type Recorder interface {
	// ProviderAttempt is called after every provider call with the failure
	// kind, or "" on success.
	ProviderAttempt(provider string, kind Kind)

	// ProviderCompleted is called once per provider consulted by the chain.
	ProviderCompleted(provider string, success bool, elapsed time.Duration)

	// RequestCompleted is called once per Service call. code is "" on
	// success.
	RequestCompleted(task TaskKind, code ErrorCode, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ProviderAttempt(string, Kind) {}
func (nopRecorder) ProviderCompleted(string, bool, time.Duration) {}
func (nopRecorder) RequestCompleted(TaskKind, ErrorCode, time.Duration) {}

// NopRecorder returns a Recorder that discards everything.
func NopRecorder() Recorder { return nopRecorder{} }
