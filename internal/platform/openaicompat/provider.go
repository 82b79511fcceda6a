package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/phrazzld/prep-api/internal/config"
	"github.com/phrazzld/prep-api/internal/generation"
	"github.com/phrazzld/prep-api/internal/platform/logger"
	"github.com/phrazzld/prep-api/internal/redact"
)

// Provider names for the endpoints this package is configured for.
const (
	NameGroq   = "groq"
	NameOpenAI = "openai"
)

// Config describes one OpenAI-compatible endpoint.
type Config struct {
	Name        string
	APIKey      string
	BaseURL     string
	Models      []string
	Temperature float64
	Timeout     time.Duration
	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// GroqConfig builds the Groq endpoint configuration.
func GroqConfig(llm config.LLMConfig) Config {
	return Config{
		Name:        NameGroq,
		APIKey:      llm.GroqAPIKey,
		BaseURL:     llm.GroqBaseURL,
		Models:      llm.GroqModels,
		Temperature: llm.Temperature,
		Timeout:     llm.RequestTimeout(),
	}
}

// OpenAIConfig builds the OpenAI endpoint configuration. An empty base URL
// selects the public API.
func OpenAIConfig(llm config.LLMConfig) Config {
	return Config{
		Name:        NameOpenAI,
		APIKey:      llm.OpenAIAPIKey,
		BaseURL:     llm.OpenAIBaseURL,
		Models:      llm.OpenAIModels,
		Temperature: llm.Temperature,
		Timeout:     llm.RequestTimeout(),
	}
}

// Provider implements generation.Provider for chat-completions endpoints
// that speak the OpenAI wire format.
type Provider struct {
	client      openai.Client
	name        string
	models      []string
	temperature float64
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a provider for cfg.
func New(cfg Config, log *slog.Logger) (*Provider, error) {
	if cfg.Name == "" {
		return nil, errors.New("openaicompat: provider name is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openaicompat: %s API key cannot be empty", cfg.Name)
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("openaicompat: %s needs at least one model", cfg.Name)
	}
	if log == nil {
		log = slog.Default()
	}

	// Retries are owned by the orchestrator.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Provider{
		client:      openai.NewClient(opts...),
		name:        cfg.Name,
		models:      append([]string(nil), cfg.Models...),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		now:         time.Now,
		logger:      log.With("component", "provider", "provider", cfg.Name),
	}, nil
}

// Name implements generation.Provider.
func (p *Provider) Name() string { return p.name }

// Models returns the model identifiers in the order they are tried.
func (p *Provider) Models() []string {
	return append([]string(nil), p.models...)
}

// Invoke implements generation.Provider. Models are tried in order; auth
// failures and a done ctx end the list early.
func (p *Provider) Invoke(ctx context.Context, spec generation.PromptSpec, maxOutputTokens int) (generation.ProviderResult, error) {
	log := logger.FromContextWith(ctx, p.logger, "component", "provider", "provider", p.name)

	var lastErr error
	for _, model := range p.models {
		text, err := p.complete(ctx, model, spec, maxOutputTokens)
		if err == nil {
			return generation.ProviderResult{Provider: p.name, Model: model, Text: text}, nil
		}
		lastErr = err

		kind := generation.KindOf(err)
		log.Warn("model failed",
			"model", model,
			"kind", kind,
			"error", redact.Error(err))
		if kind == generation.KindAuth || ctx.Err() != nil {
			break
		}
	}
	return generation.ProviderResult{}, lastErr
}

func (p *Provider) complete(ctx context.Context, model string, spec generation.PromptSpec, maxOutputTokens int) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(spec.Instruction),
		},
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(int64(maxOutputTokens)),
	}
	// JSON mode only guarantees an object, so arrays are requested by
	// prompt alone.
	if spec.Shape.IsObject() {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.classify(model, err)
	}
	if len(completion.Choices) == 0 {
		return "", p.providerError(model, generation.KindUnavailable, generation.ErrEmptyResponse)
	}

	choice := completion.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", p.providerError(model, generation.KindUnknown, generation.ErrContentBlocked)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", p.providerError(model, generation.KindUnavailable, generation.ErrEmptyResponse)
	}
	return choice.Message.Content, nil
}

func (p *Provider) classify(model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := generation.ClassifyStatus(apiErr.StatusCode, apiErr.Code, apiErr.Type, apiErr.Message, err.Error())
		pe := p.providerError(model, kind, err)
		pe.StatusCode = apiErr.StatusCode
		if apiErr.Response != nil {
			pe.RetryAfter = generation.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), p.now())
		}
		return pe
	}
	return p.providerError(model, generation.ClassifyTransport(err), err)
}

func (p *Provider) providerError(model string, kind generation.Kind, err error) *generation.ProviderError {
	return &generation.ProviderError{Provider: p.name, Model: model, Kind: kind, Err: err}
}
