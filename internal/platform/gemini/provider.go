package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/prep-api/internal/config"
	"github.com/phrazzld/prep-api/internal/generation"
	"github.com/phrazzld/prep-api/internal/platform/logger"
	"github.com/phrazzld/prep-api/internal/redact"
)

// Name identifies this provider in results, logs and metrics.
const Name = "gemini"

// contentGenerator is the slice of the genai client the provider uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Provider implements generation.Provider on top of the Gemini API. It tries
// each configured model in order until one answers.
type Provider struct {
	api         contentGenerator
	models      []string
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

// NewProvider creates a Gemini provider from the LLM configuration.
//
// The API key and at least one model are required. Callers skip the provider
// entirely when no key is configured.
func NewProvider(ctx context.Context, log *slog.Logger, cfg config.LLMConfig) (*Provider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("gemini: API key cannot be empty")
	}
	if len(cfg.GeminiModels) == 0 {
		return nil, errors.New("gemini: at least one model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return newProvider(client.Models, cfg.GeminiModels, cfg.Temperature, cfg.RequestTimeout(), log), nil
}

func newProvider(api contentGenerator, models []string, temperature float64, timeout time.Duration, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		api:         api,
		models:      append([]string(nil), models...),
		temperature: float32(temperature),
		timeout:     timeout,
		logger:      log.With("component", "provider", "provider", Name),
	}
}

// Name implements generation.Provider.
func (p *Provider) Name() string { return Name }

// Models returns the model identifiers in the order they are tried.
func (p *Provider) Models() []string {
	return append([]string(nil), p.models...)
}

// Invoke implements generation.Provider. A model failure falls through to the
// next model; auth failures and a done ctx stop the list early since another
// model cannot fix either. The last error is returned when every model fails.
func (p *Provider) Invoke(ctx context.Context, spec generation.PromptSpec, maxOutputTokens int) (generation.ProviderResult, error) {
	log := logger.FromContextWith(ctx, p.logger, "component", "provider", "provider", Name)

	var lastErr error
	for _, model := range p.models {
		text, err := p.generate(ctx, model, spec, maxOutputTokens)
		if err == nil {
			return generation.ProviderResult{Provider: Name, Model: model, Text: text}, nil
		}
		lastErr = err

		kind := generation.KindOf(err)
		log.Warn("gemini model failed",
			"model", model,
			"kind", kind,
			"error", redact.Error(err))
		if kind == generation.KindAuth || ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = &generation.ProviderError{Provider: Name, Kind: generation.KindUnknown, Err: errors.New("no models configured")}
	}
	return generation.ProviderResult{}, lastErr
}

func (p *Provider) generate(ctx context.Context, model string, spec generation.PromptSpec, maxOutputTokens int) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(p.temperature),
		MaxOutputTokens:  int32(maxOutputTokens),
		ResponseMIMEType: "application/json",
	}

	resp, err := p.api.GenerateContent(ctx, model, genai.Text(spec.Instruction), cfg)
	if err != nil {
		return "", classify(model, err)
	}
	return responseText(model, resp)
}

// responseText extracts the answer text. A response truncated at the token
// limit is still returned; the normalizer repairs what it can.
func responseText(model string, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", emptyResponse(model)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", &generation.ProviderError{
			Provider: Name, Model: model, Kind: generation.KindUnknown,
			Err: fmt.Errorf("%w: %s", generation.ErrContentBlocked, fb.BlockReason),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", emptyResponse(model)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", &generation.ProviderError{
			Provider: Name, Model: model, Kind: generation.KindUnknown,
			Err: generation.ErrContentBlocked,
		}
	}
	if candidate.Content == nil {
		return "", emptyResponse(model)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", emptyResponse(model)
	}
	return b.String(), nil
}

func emptyResponse(model string) error {
	return &generation.ProviderError{
		Provider: Name, Model: model, Kind: generation.KindUnavailable,
		Err: generation.ErrEmptyResponse,
	}
}
