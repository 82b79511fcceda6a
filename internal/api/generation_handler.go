package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/prep-api/internal/api/shared"
	"github.com/phrazzld/prep-api/internal/generation"
	"github.com/phrazzld/prep-api/internal/platform/logger"
)

// GenerationService is the part of *generation.Service the handlers use.
type GenerationService interface {
	GenerateQuestions(ctx context.Context, identity string, p generation.QuestionSetParams) (*generation.NormalizedResult, error)
	ExplainConcept(ctx context.Context, identity string, p generation.ConceptParams) (*generation.NormalizedResult, error)
}

// GenerationHandler serves the two generation endpoints.
type GenerationHandler struct {
	service GenerationService
	logger  *slog.Logger
}

// NewGenerationHandler creates a GenerationHandler.
func NewGenerationHandler(service GenerationService, log *slog.Logger) (*GenerationHandler, error) {
	if service == nil {
		return nil, errors.New("generation service cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &GenerationHandler{
		service: service,
		logger:  log.With("component", "generation_handler"),
	}, nil
}

// GenerateQuestions handles POST /api/ai/generate-questions.
func (h *GenerationHandler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req GenerateQuestionsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		respondValidation(w, r, "Invalid request format.", err)
		return
	}

	result, err := h.service.GenerateQuestions(r.Context(), identity, req.Params())
	if err != nil {
		HandleGenerationError(w, r, err)
		return
	}
	shared.RespondWithSuccess(w, r, result.Data, result.Provider)
}

// GenerateExplanation handles POST /api/ai/generate-explanation.
func (h *GenerationHandler) GenerateExplanation(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req GenerateExplanationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		respondValidation(w, r, "Invalid request format.", err)
		return
	}

	result, err := h.service.ExplainConcept(r.Context(), identity, req.Params())
	if err != nil {
		HandleGenerationError(w, r, err)
		return
	}
	shared.RespondWithSuccess(w, r, result.Data, result.Provider)
}

// identity reads the requester identity set by the auth middleware. A
// missing identity means the route was mounted without authentication.
func (h *GenerationHandler) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := shared.GetIdentity(r.Context())
	if !ok {
		logger.FromContextWith(r.Context(), h.logger, "component", "generation_handler").Error("identity missing from request context",
			"path", r.URL.Path)
		shared.RespondWithFailure(w, r, shared.Failure{
			Status:  http.StatusUnauthorized,
			Code:    shared.CodeUnauthorized,
			Message: "Authentication required",
		})
		return "", false
	}
	return identity, true
}
