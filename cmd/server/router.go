package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apiMiddleware "github.com/phrazzld/prep-api/internal/api/middleware"
	"github.com/phrazzld/prep-api/internal/metrics"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	r.Route("/api/ai", func(r chi.Router) {
		r.Use(app.authMiddleware.Authenticate)
		r.Post("/generate-questions", app.generationHandler.GenerateQuestions)
		r.Post("/generate-explanation", app.generationHandler.GenerateExplanation)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	if app.registry != nil {
		r.Method(http.MethodGet, app.config.Metrics.Path, metrics.Handler(app.registry))
	}

	return r
}
