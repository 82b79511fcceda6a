package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/prep-api/internal/config"
	"github.com/phrazzld/prep-api/internal/generation"
	"github.com/phrazzld/prep-api/internal/platform/gemini"
	"github.com/phrazzld/prep-api/internal/platform/openaicompat"
)

// buildProviders constructs the fallback chain in llm.provider_order. A
// provider without an API key is skipped, not treated as an error.
func buildProviders(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) ([]generation.Provider, error) {
	var providers []generation.Provider
	seen := make(map[string]bool, len(cfg.ProviderOrder))

	for _, name := range cfg.ProviderOrder {
		if seen[name] {
			continue
		}
		seen[name] = true

		p, err := buildProvider(ctx, name, cfg, log)
		if err != nil {
			return nil, err
		}
		if p == nil {
			log.Info("provider not configured, skipping", "provider", name)
			continue
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func buildProvider(ctx context.Context, name string, cfg config.LLMConfig, log *slog.Logger) (generation.Provider, error) {
	switch name {
	case gemini.Name:
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		p, err := gemini.NewProvider(ctx, log, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini provider: %w", err)
		}
		return p, nil
	case openaicompat.NameGroq:
		if cfg.GroqAPIKey == "" {
			return nil, nil
		}
		p, err := openaicompat.New(openaicompat.GroqConfig(cfg), log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize groq provider: %w", err)
		}
		return p, nil
	case openaicompat.NameOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		p, err := openaicompat.New(openaicompat.OpenAIConfig(cfg), log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// probePrompt is a minimal request used to check that a provider answers.
var probePrompt = generation.PromptSpec{
	Task:        "probe",
	Instruction: `Say hello. Reply with exactly this JSON and nothing else: {"title":"hello","explanation":"hello"}`,
	Shape:       generation.ShapeExplanation,
}

// probeProviders calls every provider once and logs whether it answered.
// Failures are logged only; startup never waits on a provider.
func probeProviders(ctx context.Context, providers []generation.Provider, timeout time.Duration, log *slog.Logger) {
	for _, p := range providers {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		res, err := p.Invoke(pctx, probePrompt, 64)
		cancel()

		if err != nil {
			log.Warn("provider probe failed",
				"provider", p.Name(),
				"kind", generation.KindOf(err),
				"elapsed", time.Since(start))
			continue
		}
		log.Info("provider probe succeeded",
			"provider", p.Name(),
			"model", res.Model,
			"elapsed", time.Since(start))
	}
}
