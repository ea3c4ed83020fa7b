package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cleanflip/opsight/internal/api/middleware"
	"github.com/cleanflip/opsight/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *middleware.Auth
	RateLimit *middleware.RateLimit

	HealthHandler http.HandlerFunc

	IngestHandler http.HandlerFunc

	ListIssuesHandler  http.HandlerFunc
	GetIssueHandler    http.HandlerFunc
	IssueEventsHandler http.HandlerFunc
	SeriesHandler      http.HandlerFunc
	StatsHandler       http.HandlerFunc

	ResolveHandler  http.HandlerFunc
	ReopenHandler   http.HandlerFunc
	IgnoreHandler   http.HandlerFunc
	UnignoreHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		// Ingestion (error-capture probes)
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("ingest"))

			r.Post("/api/v1/errors", orNotImplemented(deps.IngestHandler))
		})

		// Triage console
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("read"))

			r.Get("/api/v1/issues", orNotImplemented(deps.ListIssuesHandler))
			r.Get("/api/v1/issues/{fingerprint}", orNotImplemented(deps.GetIssueHandler))
			r.Get("/api/v1/issues/{fingerprint}/events", orNotImplemented(deps.IssueEventsHandler))
			r.Get("/api/v1/series", orNotImplemented(deps.SeriesHandler))
			r.Get("/api/v1/stats", orNotImplemented(deps.StatsHandler))

			r.Put("/api/v1/issues/{fingerprint}/resolve", orNotImplemented(deps.ResolveHandler))
			r.Put("/api/v1/issues/{fingerprint}/reopen", orNotImplemented(deps.ReopenHandler))
			r.Put("/api/v1/issues/{fingerprint}/ignore", orNotImplemented(deps.IgnoreHandler))
			r.Put("/api/v1/issues/{fingerprint}/unignore", orNotImplemented(deps.UnignoreHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
