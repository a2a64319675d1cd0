// Package api provides HTTP router setup.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/database"
	"github.com/supportquality/sentinel/internal/ingest"
	"github.com/supportquality/sentinel/internal/pipeline"
	"github.com/supportquality/sentinel/internal/vectorstore"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	cfg *config.Config,
	p *pipeline.Pipeline,
	processor *ingest.Processor,
	vstore vectorstore.Store,
	store database.Store,
) http.Handler {
	r := chi.NewRouter()

	handler := NewHandler(p, processor, vstore, store)

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", handler.HealthCheck)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(store))
			r.Use(AuditMiddleware(store))
			r.Use(RateLimitMiddleware(cfg.RateLimits.RequestsPerMinute))

			// Verification endpoints
			r.Post("/verify/response", handler.VerifyResponse)
			r.Post("/verify/batch", handler.VerifyBatch)

			// Knowledge base
			r.Post("/ingest/document", handler.IngestDocument)
			r.Get("/collections/stats", handler.CollectionStats)

			// Results
			r.Get("/results", handler.ListResults)
			r.Get("/results/{id}", handler.GetResult)

			// Audit logs
			r.Get("/audit", handler.GetAuditLogs)
		})

		// Admin routes (API key management)
		// In production, these should be protected differently
		r.Route("/admin", func(r chi.Router) {
			r.Post("/keys", handler.CreateAPIKey)
			r.Get("/keys", handler.ListAPIKeys)
			r.Delete("/keys/{id}", handler.DeleteAPIKey)
		})
	})

	return r
}
