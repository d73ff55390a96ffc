/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/payrolls/*       Calculation and record access
  /api/institutions/*   Batch-wide listings
  /api/enrollments/*    Per-period enrollment collections

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/payrolls", func(r chi.Router) {
			r.Post("/calculate", h.CalculatePayroll)
			r.Post("/calculate-detailed", h.CalculateDetailedPayroll)
			r.Get("/{key}", h.GetPayroll)
			r.Put("/{key}", h.UpdatePayroll)
		})

		r.Route("/institutions", func(r chi.Router) {
			r.Get("/{id}/payrolls", h.ListInstitutionPayrolls)
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Get("/{key}/elements", h.GetRelatedElements)
			r.Put("/{key}/elements", h.UpdateRelatedElements)
		})
	})

	return r
}
