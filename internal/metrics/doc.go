// Package metrics exports generation telemetry to Prometheus.
//
// Recorder implements generation.Recorder. Collectors are registered on a
// caller-supplied registry so tests can use a fresh one and the server can
// expose exactly what it registered through Handler.
package metrics
