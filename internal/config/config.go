package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// AuthConfig contains the settings used to verify bearer tokens issued by the
// upstream authentication service.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains all LLM integration related settings.
//
// A provider whose API key is empty is not constructed at all, so it never
// takes part in the fallback chain.
type LLMConfig struct {
	GeminiAPIKey string   `mapstructure:"gemini_api_key"`
	GeminiModels []string `mapstructure:"gemini_models" validate:"required_with=GeminiAPIKey,dive,required"`

	GroqAPIKey  string   `mapstructure:"groq_api_key"`
	GroqBaseURL string   `mapstructure:"groq_base_url" validate:"omitempty,url"`
	GroqModels  []string `mapstructure:"groq_models" validate:"required_with=GroqAPIKey,dive,required"`

	OpenAIAPIKey  string   `mapstructure:"openai_api_key"`
	OpenAIBaseURL string   `mapstructure:"openai_base_url" validate:"omitempty,url"`
	OpenAIModels  []string `mapstructure:"openai_models" validate:"required_with=OpenAIAPIKey,dive,required"`

	// ProviderOrder is the fallback priority, fastest/cheapest first.
	ProviderOrder []string `mapstructure:"provider_order" validate:"required,min=1,dive,oneof=gemini groq openai"`

	Temperature           float64 `mapstructure:"temperature" validate:"gte=0,lte=1"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds" validate:"gte=1"`
	MaxAttempts           int     `mapstructure:"max_attempts" validate:"gte=1,lte=5"`
	RetryBaseDelayMillis  int     `mapstructure:"retry_base_delay_ms" validate:"gte=0"`

	QuestionSetMaxTokens int `mapstructure:"question_set_max_tokens" validate:"gte=256"`
	ExplanationMaxTokens int `mapstructure:"explanation_max_tokens" validate:"gte=256"`

	// PromptsPath optionally points at a YAML prompt catalogue that replaces
	// the embedded one.
	PromptsPath    string `mapstructure:"prompts_path"`
	ProbeOnStartup bool   `mapstructure:"probe_on_startup"`
}

// RequestTimeout returns the per-call provider deadline.
func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the linear backoff unit.
func (c LLMConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMillis) * time.Millisecond
}

// RateLimitConfig contains the per-user quota settings.
type RateLimitConfig struct {
	Backend          string `mapstructure:"backend" validate:"required,oneof=memory redis postgres"`
	QuestionSetLimit int    `mapstructure:"question_set_limit" validate:"gte=1"`
	ExplanationLimit int    `mapstructure:"explanation_limit" validate:"gte=1"`
	WindowMinutes    int    `mapstructure:"window_minutes" validate:"gte=1"`
	RedisURL         string `mapstructure:"redis_url" validate:"required_if=Backend redis"`
	DatabaseURL      string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
}

// Window returns the fixed-window size as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}
