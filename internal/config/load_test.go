package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

// setupEnv sets environment variables for the duration of the test. Provider
// key variables are cleared first so the host environment cannot leak in.
func setupEnv(t *testing.T, envVars map[string]string) {
	t.Helper()
	for _, name := range []string{
		"GEMINI_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY",
		"PREP_LLM_GEMINI_API_KEY", "PREP_LLM_GROQ_API_KEY", "PREP_LLM_OPENAI_API_KEY",
		"PREP_CONFIG_FILE",
	} {
		t.Setenv(name, "")
	}
	for name, value := range envVars {
		t.Setenv(name, value)
	}
}

func TestLoadDefaults(t *testing.T) {
	setupEnv(t, map[string]string{
		"PREP_AUTH_JWT_SECRET": testSecret,
	})

	cfg, err := Load()

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout())
	assert.Equal(t, []string{"groq", "gemini", "openai"}, cfg.LLM.ProviderOrder)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-flash"}, cfg.LLM.GeminiModels)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.GroqBaseURL)
	assert.Equal(t, 30*time.Second, cfg.LLM.RequestTimeout())
	assert.Equal(t, time.Second, cfg.LLM.RetryBaseDelay())
	assert.Equal(t, 2, cfg.LLM.MaxAttempts)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 5, cfg.RateLimit.QuestionSetLimit)
	assert.Equal(t, 10, cfg.RateLimit.ExplanationLimit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFromEnv(t *testing.T) {
	setupEnv(t, map[string]string{
		"PREP_SERVER_PORT":                   "9090",
		"PREP_SERVER_LOG_LEVEL":              "debug",
		"PREP_AUTH_JWT_SECRET":               testSecret,
		"PREP_LLM_GEMINI_API_KEY":            "test-gemini-key",
		"PREP_LLM_PROVIDER_ORDER":            "gemini,groq",
		"PREP_LLM_MAX_ATTEMPTS":              "3",
		"PREP_RATE_LIMIT_QUESTION_SET_LIMIT": "7",
		"PREP_RATE_LIMIT_WINDOW_MINUTES":     "15",
	})

	cfg, err := Load()

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "test-gemini-key", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, []string{"gemini", "groq"}, cfg.LLM.ProviderOrder)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, 7, cfg.RateLimit.QuestionSetLimit)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window())
}

func TestLoadProviderKeyAliases(t *testing.T) {
	setupEnv(t, map[string]string{
		"PREP_AUTH_JWT_SECRET": testSecret,
		"GEMINI_API_KEY":       "alias-gemini",
		"GROQ_API_KEY":         "alias-groq",
		"OPENAI_API_KEY":       "alias-openai",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "alias-gemini", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, "alias-groq", cfg.LLM.GroqAPIKey)
	assert.Equal(t, "alias-openai", cfg.LLM.OpenAIAPIKey)
}

func TestLoadPrefixedKeyWinsOverAlias(t *testing.T) {
	setupEnv(t, map[string]string{
		"PREP_AUTH_JWT_SECRET":  testSecret,
		"PREP_LLM_GROQ_API_KEY": "prefixed",
		"GROQ_API_KEY":          "alias",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.LLM.GroqAPIKey)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prep.yaml")
	content := []byte(`
server:
  port: 7070
auth:
  jwt_secret: "` + testSecret + `"
rate_limit:
  explanation_limit: 3
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	setupEnv(t, map[string]string{
		"PREP_CONFIG_FILE":      path,
		"PREP_SERVER_LOG_LEVEL": "warn",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Server.LogLevel, "env should override file")
	assert.Equal(t, 3, cfg.RateLimit.ExplanationLimit)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	setupEnv(t, map[string]string{
		"PREP_CONFIG_FILE":     filepath.Join(t.TempDir(), "absent.yaml"),
		"PREP_AUTH_JWT_SECRET": testSecret,
	})

	cfg, err := Load()

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name:    "missing jwt secret",
			envVars: map[string]string{"PREP_SERVER_PORT": "9090"},
		},
		{
			name: "port out of range",
			envVars: map[string]string{
				"PREP_SERVER_PORT":     "999999",
				"PREP_AUTH_JWT_SECRET": testSecret,
			},
		},
		{
			name: "invalid log level",
			envVars: map[string]string{
				"PREP_SERVER_LOG_LEVEL": "invalid-level",
				"PREP_AUTH_JWT_SECRET":  testSecret,
			},
		},
		{
			name: "short jwt secret",
			envVars: map[string]string{
				"PREP_AUTH_JWT_SECRET": "tooshort",
			},
		},
		{
			name: "unknown provider in order",
			envVars: map[string]string{
				"PREP_AUTH_JWT_SECRET":    testSecret,
				"PREP_LLM_PROVIDER_ORDER": "groq,claude",
			},
		},
		{
			name: "max attempts too high",
			envVars: map[string]string{
				"PREP_AUTH_JWT_SECRET":  testSecret,
				"PREP_LLM_MAX_ATTEMPTS": "9",
			},
		},
		{
			name: "redis backend without url",
			envVars: map[string]string{
				"PREP_AUTH_JWT_SECRET":    testSecret,
				"PREP_RATE_LIMIT_BACKEND": "redis",
			},
		},
		{
			name: "postgres backend without url",
			envVars: map[string]string{
				"PREP_AUTH_JWT_SECRET":    testSecret,
				"PREP_RATE_LIMIT_BACKEND": "postgres",
			},
		},
		{
			name: "unknown backend",
			envVars: map[string]string{
				"PREP_AUTH_JWT_SECRET":    testSecret,
				"PREP_RATE_LIMIT_BACKEND": "memcached",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setupEnv(t, tc.envVars)

			cfg, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
			assert.Nil(t, cfg)
		})
	}
}
