/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/accounts/*    Account records and segments
  /api/at-risk       Cached at-risk snapshot
  /api/segments      Cached per-year segment map
  /api/duplicates/*  Duplicate group review
  /api/snoozes/*     At-risk suppressions
  /api/admin/*       Manual refresh

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Get("/{id}", h.GetAccount)
		})

		r.Get("/at-risk", h.ListAtRisk)
		r.Get("/segments", h.ListSegments)

		r.Route("/duplicates", func(r chi.Router) {
			r.Get("/", h.ListDuplicates)
			r.Post("/{id}/resolve", h.ResolveDuplicate)
		})

		r.Route("/snoozes", func(r chi.Router) {
			r.Post("/", h.CreateSnooze)
			r.Delete("/{id}", h.DeleteSnooze)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/refresh", h.TriggerRefresh)
			r.Get("/refresh/last", h.LastRefresh)
		})
	})

	return r
}
