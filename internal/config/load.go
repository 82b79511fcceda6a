package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. PREP_SERVER_PORT.
const EnvPrefix = "PREP"

// providerKeyAliases lets the conventional provider variable names work
// without the application prefix.
var providerKeyAliases = map[string]string{
	"llm.gemini_api_key": "GEMINI_API_KEY",
	"llm.groq_api_key":   "GROQ_API_KEY",
	"llm.openai_api_key": "OPENAI_API_KEY",
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: explicit path first, then ./config.yaml
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range providerKeyAliases {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_models", []string{"gemini-2.0-flash", "gemini-1.5-flash"})
	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.groq_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.groq_models", []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"})
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.openai_models", []string{"gpt-4o-mini"})
	v.SetDefault("llm.provider_order", []string{"groq", "gemini", "openai"})
	v.SetDefault("llm.temperature", 0.5)
	v.SetDefault("llm.request_timeout_seconds", 30)
	v.SetDefault("llm.max_attempts", 2)
	v.SetDefault("llm.retry_base_delay_ms", 1000)
	v.SetDefault("llm.question_set_max_tokens", 4096)
	v.SetDefault("llm.explanation_max_tokens", 2048)
	v.SetDefault("llm.prompts_path", "")
	v.SetDefault("llm.probe_on_startup", false)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.question_set_limit", 5)
	v.SetDefault("rate_limit.explanation_limit", 10)
	v.SetDefault("rate_limit.window_minutes", 60)
	v.SetDefault("rate_limit.redis_url", "")
	v.SetDefault("rate_limit.database_url", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
