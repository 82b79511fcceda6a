// Package logger configures the process-wide structured JSON logger and
// carries request-scoped loggers through context.Context.
//
// It is built on the standard library log/slog package.
package logger
