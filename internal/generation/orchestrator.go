package generation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/prep-api/internal/platform/logger"
	"github.com/phrazzld/prep-api/internal/redact"
)

const (
	tracerName            = "github.com/phrazzld/prep-api/internal/generation"
	orchestratorComponent = "orchestrator"
)

// Orchestrator runs an ordered chain of providers. Each provider gets its
// own retry budget; the first normalized result wins and later providers are
// never consulted.
type Orchestrator struct {
	providers []Provider
	policy    RetryPolicy
	logger    *slog.Logger
	recorder  Recorder
	tracer    trace.Tracer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// NewOrchestrator returns an Orchestrator that consults providers in the
// given order. An empty chain is valid; Generate then fails with an error
// matching ErrNoProviders.
func NewOrchestrator(providers []Provider, policy RetryPolicy, log *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		providers: append([]Provider(nil), providers...),
		policy:    policy,
		logger:    log.With("component", orchestratorComponent),
		recorder:  NopRecorder(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Providers returns the provider names in chain order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate produces a normalized result for spec. When every provider fails
// the error is an *AggregateError listing each failure in chain order. A
// done ctx stops the chain before the next provider is consulted.
func (o *Orchestrator) Generate(ctx context.Context, spec PromptSpec, maxOutputTokens int) (*NormalizedResult, error) {
	log := logger.FromContextWith(ctx, o.logger, "component", orchestratorComponent).With("task", spec.Task)
	if len(o.providers) == 0 {
		log.Error("no generation providers configured")
		return nil, &AggregateError{}
	}

	var failures []ProviderFailure
	for _, p := range o.providers {
		if err := ctx.Err(); err != nil {
			log.Warn("generation chain interrupted", "error", err, "failed_providers", len(failures))
			return nil, &AggregateError{Failures: failures, Interrupted: err}
		}

		result, failure := o.tryProvider(ctx, log, p, spec, maxOutputTokens)
		if failure == nil {
			return result, nil
		}
		failures = append(failures, *failure)
	}

	agg := &AggregateError{Failures: failures}
	if err := ctx.Err(); err != nil {
		agg.Interrupted = err
	}
	log.Error("all generation providers failed", "error", agg.Error())
	return nil, agg
}

func (o *Orchestrator) tryProvider(
	ctx context.Context,
	log *slog.Logger,
	p Provider,
	spec PromptSpec,
	maxOutputTokens int,
) (*NormalizedResult, *ProviderFailure) {
	name := p.Name()
	ctx, span := o.tracer.Start(ctx, "generation.provider",
		trace.WithAttributes(
			attribute.String("generation.provider", name),
			attribute.String("generation.task", string(spec.Task)),
		))
	defer span.End()

	log = log.With("provider", name)
	start := time.Now()

	result, attempts, err := Retry(ctx, o.policy, func(ctx context.Context, attempt int) (NormalizedResult, error) {
		raw, err := p.Invoke(ctx, spec, maxOutputTokens)
		if err == nil {
			var value any
			value, err = Normalize(raw.Text, spec.Shape)
			if err == nil {
				o.recorder.ProviderAttempt(name, "")
				log.Debug("provider attempt succeeded", "model", raw.Model, "attempt", attempt)
				return NormalizedResult{Data: value, Provider: name, Model: raw.Model}, nil
			}
		}

		kind := KindOf(err)
		o.recorder.ProviderAttempt(name, kind)
		log.Warn("provider attempt failed",
			"attempt", attempt,
			"max_attempts", o.policy.MaxAttempts,
			"kind", kind,
			"retryable", kind.Retryable(),
			"error", redact.Error(err))
		return NormalizedResult{}, err
	})

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("generation.attempts", len(attempts)))

	if err == nil {
		o.recorder.ProviderCompleted(name, true, elapsed)
		span.SetAttributes(attribute.String("generation.model", result.Model))
		log.Info("generation succeeded",
			"model", result.Model,
			"attempts", len(attempts),
			"elapsed", elapsed)
		return &result, nil
	}

	kind := KindOf(err)
	o.recorder.ProviderCompleted(name, false, elapsed)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	log.Warn("provider exhausted, moving to next",
		"kind", kind,
		"attempts", len(attempts),
		"elapsed", elapsed)

	return nil, &ProviderFailure{Provider: name, Kind: kind, Err: err, Attempts: attempts}
}
