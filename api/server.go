/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:            Request logging
  2. Recoverer:         Panic recovery (500 instead of crash)
  3. RequestID:         Unique ID per request for tracing
  4. CORS:              Cross-origin requests for the admin frontend
  5. CallerFromHeaders: Caller identity (everything under /api except
                        /api/health requires one)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Caller extraction
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Caller-ID", "X-Caller-Role"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Everything below requires a caller identity
		r.Group(func(r chi.Router) {
			r.Use(CallerFromHeaders)

			r.Route("/cancellations", func(r chi.Router) {
				r.Get("/", h.ListCancellations)
				r.Post("/", h.CancelMeal)
				r.Delete("/{id}", h.UncancelMeal)
			})

			r.Route("/settlements", func(r chi.Router) {
				r.Get("/", h.ListSettlements)
				r.Post("/refunds", h.MarkRefunded)
				r.Post("/payments", h.GeneratePayments)
			})

			r.Get("/children/{id}/payments", h.ListChildPayments)

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/reset", h.ResetDatabase)
			})
		})
	})

	return r
}
