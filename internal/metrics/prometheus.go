package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/prep-api/internal/generation"
)

const namespace = "prep"

// Recorder reports generation metrics using Prometheus primitives.
type Recorder struct {
	attempts         *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

var _ generation.Recorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them on registry.
func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		return nil, errors.New("prometheus registry is nil")
	}

	r := &Recorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider calls by outcome kind; kind is \"ok\" on success.",
		}, []string{"provider", "kind"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Providers consulted by the fallback chain, by outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Time spent on one provider including retries.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generation requests by task and result code.",
		}, []string{"task", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "End-to-end generation request latency.",
			Buckets:   []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"task"}),
	}

	for _, c := range []prometheus.Collector{
		r.attempts, r.providerCalls, r.providerDuration, r.requests, r.requestDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// ProviderAttempt implements generation.Recorder.
func (r *Recorder) ProviderAttempt(provider string, kind generation.Kind) {
	label := string(kind)
	if label == "" {
		label = "ok"
	}
	r.attempts.WithLabelValues(provider, label).Inc()
}

// ProviderCompleted implements generation.Recorder.
func (r *Recorder) ProviderCompleted(provider string, success bool, elapsed time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
	r.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RequestCompleted implements generation.Recorder.
func (r *Recorder) RequestCompleted(task generation.TaskKind, code generation.ErrorCode, elapsed time.Duration) {
	label := string(code)
	if label == "" {
		label = "OK"
	}
	r.requests.WithLabelValues(string(task), label).Inc()
	r.requestDuration.WithLabelValues(string(task)).Observe(elapsed.Seconds())
}

// NewRegistry returns a registry with the Go runtime and process collectors
// already registered.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
