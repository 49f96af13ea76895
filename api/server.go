/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

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
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/members/*    Member registry
  /api/packages/*   Package lifecycle, balance, consumption
  /healthz          Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  the service is meant to run behind the campus admin gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		// Member registry
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{type}/{id}", h.GetMember)
		})

		// Package lifecycle
		r.Route("/packages", func(r chi.Router) {
			r.Get("/", h.ListPackages)
			r.Post("/", h.CreatePackage)
			r.Get("/{id}", h.GetPackage)
			r.Put("/{id}", h.UpdatePackage)
			r.Delete("/{id}", h.DeletePackage)

			r.Post("/{id}/renew", h.RenewPackage)
			r.Post("/{id}/deactivate", h.DeactivatePackage)
			r.Post("/{id}/reactivate", h.ReactivatePackage)
			r.Get("/{id}/history", h.GetHistory)

			// Balance ledger (daily basis)
			r.Post("/{id}/deposits", h.CreateDeposit)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/reconciliation", h.GetReconciliation)

			// Consumption
			r.Post("/{id}/consumptions", h.RecordConsumption)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
