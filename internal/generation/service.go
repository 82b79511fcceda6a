package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/prep-api/internal/platform/logger"
	"github.com/phrazzld/prep-api/internal/ratelimit"
	"github.com/phrazzld/prep-api/internal/redact"
)

// Default wait hints used when a throttled provider gives none.
const (
	DefaultRateLimitWait = 30 * time.Second
	DefaultQuotaWait     = 60 * time.Second
)

const serviceComponent = "generation_service"

// Limiter gates requests per key. *ratelimit.Limiter satisfies it.
type Limiter interface {
	CheckAndConsume(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// Generator produces a normalized result for a prompt. *Orchestrator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, spec PromptSpec, maxOutputTokens int) (*NormalizedResult, error)
}

// ServiceConfig holds per-task quotas and token budgets.
type ServiceConfig struct {
	QuestionSetLimit     int
	ExplanationLimit     int
	Window               time.Duration
	QuestionSetMaxTokens int
	ExplanationMaxTokens int
}

// Service is the entry point for both generation tasks.
type Service struct {
	generator Generator
	limiter   Limiter
	catalog   *PromptCatalog
	cfg       ServiceConfig
	validate  *validator.Validate
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceRecorder sets the telemetry sink.
func WithServiceRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithServiceClock replaces time.Now when computing retry-after hints.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService wires the generation pipeline.
func NewService(
	generator Generator,
	limiter Limiter,
	catalog *PromptCatalog,
	cfg ServiceConfig,
	log *slog.Logger,
	opts ...ServiceOption,
) (*Service, error) {
	if generator == nil {
		return nil, errors.New("generation service: generator is required")
	}
	if limiter == nil {
		return nil, errors.New("generation service: limiter is required")
	}
	if catalog == nil {
		return nil, errors.New("generation service: prompt catalogue is required")
	}
	if cfg.QuestionSetLimit <= 0 || cfg.ExplanationLimit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("generation service: limits and window must be positive")
	}
	if log == nil {
		log = slog.Default()
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	s := &Service{
		generator: generator,
		limiter:   limiter,
		catalog:   catalog,
		cfg:       cfg,
		validate:  validate,
		logger:    log.With("component", serviceComponent),
		recorder:  NopRecorder(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GenerateQuestions generates a question/answer set for identity.
func (s *Service) GenerateQuestions(ctx context.Context, identity string, p QuestionSetParams) (*NormalizedResult, error) {
	return s.Generate(ctx, NewQuestionSetRequest(identity, p))
}

// ExplainConcept generates a concept explanation for identity.
func (s *Service) ExplainConcept(ctx context.Context, identity string, p ConceptParams) (*NormalizedResult, error) {
	return s.Generate(ctx, NewConceptRequest(identity, p))
}

// Generate validates req, applies the caller's quota, runs the provider
// chain and returns the normalized result. Every failure is an *Error.
func (s *Service) Generate(ctx context.Context, req Request) (*NormalizedResult, error) {
	start := s.now()
	log := logger.FromContextWith(ctx, s.logger, "component", serviceComponent).With(
		"generation_id", req.ID().String(),
		"task", req.Kind())

	result, err := s.generate(ctx, log, req)

	var code ErrorCode
	if err != nil {
		code = errorCode(err)
		log.Warn("generation request failed", "code", code, "error", redact.Error(err))
	}
	s.recorder.RequestCompleted(req.Kind(), code, s.now().Sub(start))
	return result, err
}

func (s *Service) generate(ctx context.Context, log *slog.Logger, req Request) (*NormalizedResult, error) {
	limit, maxTokens, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	key := string(req.Kind()) + ":" + req.Identity()
	decision, err := s.limiter.CheckAndConsume(ctx, key, limit, s.cfg.Window)
	switch {
	case err != nil:
		// Fail open.
		log.Warn("rate limiter unavailable, allowing request", "error", err)
	case !decision.Allowed:
		return nil, &Error{
			Code: CodeRateLimitExceeded,
			Message: fmt.Sprintf("Rate limit exceeded: at most %d %s requests per %s.",
				limit, req.Kind(), humanWindow(s.cfg.Window)),
			RetryAfter: decision.RetryAfter(s.now()),
		}
	}

	spec, err := BuildPrompt(s.catalog, req)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Message: "An unexpected error occurred.", Err: err}
	}

	result, err := s.generator.Generate(ctx, spec, maxTokens)
	if err != nil {
		return nil, s.mapGenerationError(err)
	}

	if p, ok := req.QuestionSet(); ok {
		if items, ok := result.Data.([]QuestionAnswer); ok && len(items) > p.Count {
			trimmed := *result
			trimmed.Data = items[:p.Count]
			result = &trimmed
		}
	}

	log.Info("generation request completed", "provider", result.Provider, "model", result.Model)
	return result, nil
}

func (s *Service) validateRequest(req Request) (limit, maxTokens int, err error) {
	if req.Identity() == "" {
		return 0, 0, &Error{Code: CodeValidation, Message: "Requester identity is required."}
	}

	var params any
	switch req.Kind() {
	case TaskQuestionSet:
		params, _ = req.QuestionSet()
		limit, maxTokens = s.cfg.QuestionSetLimit, s.cfg.QuestionSetMaxTokens
	case TaskConceptExplanation:
		params, _ = req.Concept()
		limit, maxTokens = s.cfg.ExplanationLimit, s.cfg.ExplanationMaxTokens
	default:
		return 0, 0, &Error{Code: CodeValidation, Message: fmt.Sprintf("Unsupported task %q.", req.Kind())}
	}

	if err := s.validate.Struct(params); err != nil {
		return 0, 0, &Error{Code: CodeValidation, Message: validationMessage(err), Err: err}
	}
	return limit, maxTokens, nil
}

// mapGenerationError reduces a chain failure to one caller-facing code. An
// auth failure anywhere wins; otherwise the last provider's kind decides.
func (s *Service) mapGenerationError(err error) *Error {
	var agg *AggregateError
	if !errors.As(err, &agg) {
		return &Error{Code: CodeInternal, Message: "An unexpected error occurred.", Err: err}
	}

	switch {
	case agg.Interrupted != nil && len(agg.Failures) == 0:
		return &Error{Code: CodeProviderUnavailable, Message: "The request was cancelled before a provider answered.", Err: err}
	case len(agg.Failures) == 0:
		return &Error{Code: CodeServiceNotConfigured, Message: "No AI provider is configured.", Err: err}
	case agg.HasKind(KindAuth):
		return &Error{Code: CodeInvalidAPIKey, Message: "AI provider rejected its credentials. Check the API key configuration.", Err: err}
	}

	last := agg.Failures[len(agg.Failures)-1]
	switch last.Kind {
	case KindRateLimited:
		return &Error{
			Code:       CodeAPIRateLimit,
			Message:    "AI providers are rate limiting requests. Please try again shortly.",
			RetryAfter: waitHint(last.Err, DefaultRateLimitWait),
			Err:        err,
		}
	case KindQuotaExceeded:
		return &Error{
			Code:       CodeQuotaExceeded,
			Message:    "AI provider quota is exhausted. Please try again later.",
			RetryAfter: waitHint(last.Err, DefaultQuotaWait),
			Err:        err,
		}
	case KindParse:
		return &Error{Code: CodeParseError, Message: "The AI response could not be read. Please try again.", Err: err}
	default:
		return &Error{Code: CodeProviderUnavailable, Message: "AI service is temporarily unavailable. Please try again.", Err: err}
	}
}

func waitHint(err error, fallback time.Duration) time.Duration {
	if d := retryAfterHint(err); d > 0 {
		return d
	}
	return fallback
}

func errorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request."
	}
	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "Missing required fields: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "Invalid fields: "+strings.Join(invalid, ", "))
	}
	return strings.Join(parts, ". ") + "."
}

func humanWindow(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
