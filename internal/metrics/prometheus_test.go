package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/prep-api/internal/generation"
	"github.com/phrazzld/prep-api/internal/metrics"
)

func TestNewRecorderRequiresRegistry(t *testing.T) {
	_, err := metrics.NewRecorder(nil)
	require.Error(t, err)
}

func TestNewRecorderRejectsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := metrics.NewRecorder(registry)
	require.NoError(t, err)

	_, err = metrics.NewRecorder(registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register collector")
}

func TestRecorderCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(registry)
	require.NoError(t, err)

	rec.ProviderAttempt("gemini", generation.KindRateLimited)
	rec.ProviderAttempt("gemini", generation.KindRateLimited)
	rec.ProviderAttempt("groq", "")
	rec.ProviderCompleted("gemini", false, 3*time.Second)
	rec.ProviderCompleted("groq", true, 800*time.Millisecond)
	rec.RequestCompleted(generation.TaskQuestionSet, "", 4*time.Second)
	rec.RequestCompleted(generation.TaskQuestionSet, generation.CodeRateLimitExceeded, time.Millisecond)

	expected := `
# HELP prep_provider_attempts_total Provider calls by outcome kind; kind is "ok" on success.
# TYPE prep_provider_attempts_total counter
prep_provider_attempts_total{kind="ok",provider="groq"} 1
prep_provider_attempts_total{kind="rate_limited",provider="gemini"} 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "prep_provider_attempts_total"))

	expected = `
# HELP prep_provider_calls_total Providers consulted by the fallback chain, by outcome.
# TYPE prep_provider_calls_total counter
prep_provider_calls_total{outcome="failure",provider="gemini"} 1
prep_provider_calls_total{outcome="success",provider="groq"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "prep_provider_calls_total"))

	expected = `
# HELP prep_generation_requests_total Generation requests by task and result code.
# TYPE prep_generation_requests_total counter
prep_generation_requests_total{code="OK",task="question-set"} 1
prep_generation_requests_total{code="RATE_LIMIT_EXCEEDED",task="question-set"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "prep_generation_requests_total"))

	n, err := testutil.GatherAndCount(registry, "prep_provider_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one histogram per provider")

	n, err = testutil.GatherAndCount(registry, "prep_generation_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandlerExposesMetrics(t *testing.T) {
	registry := metrics.NewRegistry()
	rec, err := metrics.NewRecorder(registry)
	require.NoError(t, err)
	rec.RequestCompleted(generation.TaskConceptExplanation, "", time.Second)

	srv := httptest.NewServer(metrics.Handler(registry))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `prep_generation_requests_total{code="OK",task="concept-explanation"} 1`)
	assert.Contains(t, string(body), "prep_generation_request_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
