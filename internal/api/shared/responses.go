package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/prep-api/internal/platform/logger"
	"github.com/phrazzld/prep-api/internal/redact"
)

// CodeUnauthorized is the envelope code for missing or rejected credentials.
const CodeUnauthorized = "UNAUTHORIZED"

// SuccessResponse is the envelope for a successful generation.
type SuccessResponse struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data"`
	Provider string `json:"provider,omitempty"`
}

// ErrorResponse is the envelope for every failure. Error carries the stable
// code; Message is safe to show to end users.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

// Failure describes an error response before it is written.
type Failure struct {
	Status  int
	Code    string
	Message string

	// RetryAfterSeconds, when positive, is sent in the body and as the
	// Retry-After header.
	RetryAfterSeconds int

	// Err is logged (redacted) and never sent to the client.
	Err error
}

// RespondWithJSON writes a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithSuccess writes a 200 success envelope.
func RespondWithSuccess(w http.ResponseWriter, r *http.Request, data any, provider string) {
	RespondWithJSON(w, r, http.StatusOK, SuccessResponse{
		Success:  true,
		Data:     data,
		Provider: provider,
	})
}

// RespondWithFailure writes the error envelope and logs the failure.
//
// Log level strategy:
// - 5xx errors: ERROR
// - 429 Too Many Requests: WARN
// - other 4xx errors: DEBUG
func RespondWithFailure(w http.ResponseWriter, r *http.Request, f Failure) {
	traceID := GetTraceID(r.Context())

	logAttrs := []slog.Attr{
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", f.Status),
		slog.String("code", f.Code),
		slog.String("user_message", f.Message),
	}
	if f.Err != nil {
		logAttrs = append(logAttrs,
			slog.String("error", redact.Error(f.Err)),
			slog.String("error_type", fmt.Sprintf("%T", f.Err)))
	}

	logLevel := slog.LevelDebug
	switch {
	case f.Status >= http.StatusInternalServerError:
		logLevel = slog.LevelError
	case f.Status == http.StatusTooManyRequests:
		logLevel = slog.LevelWarn
	}
	logger.FromContext(r.Context()).LogAttrs(r.Context(), logLevel, "API error response", logAttrs...)

	if f.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(f.RetryAfterSeconds))
	}
	RespondWithJSON(w, r, f.Status, ErrorResponse{
		Success:    false,
		Message:    f.Message,
		Error:      f.Code,
		RetryAfter: f.RetryAfterSeconds,
		TraceID:    traceID,
	})
}
