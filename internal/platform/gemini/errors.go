package gemini

import (
	"errors"

	"google.golang.org/genai"

	"github.com/phrazzld/prep-api/internal/generation"
)

// classify wraps a genai client error in a generation.ProviderError.
func classify(model string, err error) error {
	pe := &generation.ProviderError{Provider: Name, Model: model, Err: err}

	if apiErr, ok := asAPIError(err); ok {
		pe.StatusCode = apiErr.Code
		pe.Kind = generation.ClassifyStatus(apiErr.Code, apiErr.Status, apiErr.Message)
		return pe
	}

	pe.Kind = generation.ClassifyTransport(err)
	return pe
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}
