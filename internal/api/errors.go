package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/prep-api/internal/api/shared"
	"github.com/phrazzld/prep-api/internal/generation"
)

// StatusForCode maps a generation error code to its HTTP status.
func StatusForCode(code generation.ErrorCode) int {
	switch code {
	case generation.CodeValidation:
		return http.StatusBadRequest
	case generation.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case generation.CodeInvalidAPIKey, generation.CodeParseError:
		return http.StatusBadGateway
	case generation.CodeAPIRateLimit,
		generation.CodeQuotaExceeded,
		generation.CodeProviderUnavailable,
		generation.CodeServiceNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleGenerationError writes the failure envelope for err. Errors that are
// not a *generation.Error are reported as INTERNAL_ERROR without exposing
// their text.
func HandleGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var gerr *generation.Error
	if !errors.As(err, &gerr) {
		gerr = &generation.Error{
			Code:    generation.CodeInternal,
			Message: "An unexpected error occurred.",
			Err:     err,
		}
	}

	f := shared.Failure{
		Status:  StatusForCode(gerr.Code),
		Code:    string(gerr.Code),
		Message: gerr.Message,
		Err:     gerr.Err,
	}
	if gerr.HasRetryAfter() {
		f.RetryAfterSeconds = gerr.RetryAfterSeconds()
	}
	shared.RespondWithFailure(w, r, f)
}

// respondValidation writes a VALIDATION_ERROR response for a request that
// never reached the service.
func respondValidation(w http.ResponseWriter, r *http.Request, msg string, err error) {
	shared.RespondWithFailure(w, r, shared.Failure{
		Status:  http.StatusBadRequest,
		Code:    string(generation.CodeValidation),
		Message: msg,
		Err:     err,
	})
}
