package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/prep-api/internal/api"
	"github.com/phrazzld/prep-api/internal/api/middleware"
	"github.com/phrazzld/prep-api/internal/config"
	"github.com/phrazzld/prep-api/internal/generation"
	"github.com/phrazzld/prep-api/internal/metrics"
	"github.com/phrazzld/prep-api/internal/platform/postgres"
	"github.com/phrazzld/prep-api/internal/platform/redis"
	"github.com/phrazzld/prep-api/internal/ratelimit"
)

// application holds the shared dependencies so they can be closed together
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Rate-limit backends; at most one is set.
	db    *sql.DB
	redis *goredis.Client

	providers []generation.Provider
	limiter   *ratelimit.Limiter
	service   *generation.Service
	registry  *prometheus.Registry

	generationHandler *api.GenerationHandler
	authMiddleware    *middleware.AuthMiddleware
}

// newApplication builds every dependency from cfg. Resources opened before a
// failure are released before returning.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *application, err error) {
	app := &application{config: cfg, logger: log}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	var recorder generation.Recorder = generation.NopRecorder()
	if cfg.Metrics.Enabled {
		app.registry = metrics.NewRegistry()
		rec, err := metrics.NewRecorder(app.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		recorder = rec
	}

	app.providers, err = buildProviders(ctx, cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	if len(app.providers) == 0 {
		log.Warn("no AI provider configured; generation requests will fail with SERVICE_NOT_CONFIGURED")
	}

	catalog, err := loadPromptCatalog(cfg.LLM)
	if err != nil {
		return nil, err
	}

	store, err := app.newRateLimitStore(ctx)
	if err != nil {
		return nil, err
	}
	app.limiter = ratelimit.NewLimiter(store, log, ratelimit.WithSweepInterval(cfg.RateLimit.Window()))

	orchestrator := generation.NewOrchestrator(app.providers, generation.RetryPolicy{
		MaxAttempts: cfg.LLM.MaxAttempts,
		BaseDelay:   cfg.LLM.RetryBaseDelay(),
	}, log, generation.WithRecorder(recorder))

	app.service, err = generation.NewService(orchestrator, app.limiter, catalog, generation.ServiceConfig{
		QuestionSetLimit:     cfg.RateLimit.QuestionSetLimit,
		ExplanationLimit:     cfg.RateLimit.ExplanationLimit,
		Window:               cfg.RateLimit.Window(),
		QuestionSetMaxTokens: cfg.LLM.QuestionSetMaxTokens,
		ExplanationMaxTokens: cfg.LLM.ExplanationMaxTokens,
	}, log, generation.WithServiceRecorder(recorder))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation service: %w", err)
	}

	app.generationHandler, err = api.NewGenerationHandler(app.service, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation handler: %w", err)
	}

	app.authMiddleware, err = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth middleware: %w", err)
	}

	log.Info("application initialized",
		"providers", orchestrator.Providers(),
		"metrics_enabled", cfg.Metrics.Enabled)
	return app, nil
}

func loadPromptCatalog(cfg config.LLMConfig) (*generation.PromptCatalog, error) {
	if cfg.PromptsPath == "" {
		catalog, err := generation.DefaultPromptCatalog()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded prompts: %w", err)
		}
		return catalog, nil
	}
	catalog, err := generation.LoadPromptCatalog(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts from %s: %w", cfg.PromptsPath, err)
	}
	return catalog, nil
}

// newRateLimitStore opens the configured backend.
func (app *application) newRateLimitStore(ctx context.Context) (ratelimit.Store, error) {
	cfg := app.config.RateLimit
	switch cfg.Backend {
	case "redis":
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = client
		app.logger.Info("rate limiter using redis")
		return redis.NewStore(client), nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.db = db
		if err := postgres.Migrate(ctx, db, app.logger); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		app.logger.Info("rate limiter using postgres")
		return postgres.NewRateLimitStore(db), nil

	default:
		app.logger.Info("rate limiter using process memory")
		return ratelimit.NewMemoryStore(), nil
	}
}

// cleanup releases every resource the application opened. It is safe to
// call on a partially initialized application.
func (app *application) cleanup() {
	if app.limiter != nil {
		app.limiter.Stop()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
