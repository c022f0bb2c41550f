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
  4. CORS:       Cross-origin requests for ops dashboards

ROUTE GROUPS:
  /api/customers/*      Balance computation and sync
  /api/invoices/*       Invoice balance maintenance
  /api/settlements/*    Settlement write verification and recovery
  /api/admin/*          Cleanup, reconciliation, batch repair
  /api/health           Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  deploy behind an authenticating proxy.

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
		// Customer balance routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/credit", h.GetCredit)
			r.Post("/{id}/sync", h.SyncBalance)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Post("/{id}/recompute", h.RecomputeInvoice)
			r.Post("/{id}/payment", h.ApplyPayment)
			r.Post("/returns", h.RecordReturn)
			r.Delete("/returns/{id}", h.DeleteReturn)
		})

		// Settlement routes
		r.Route("/settlements", func(r chi.Router) {
			r.Post("/{id}/refund", h.SettleRefund)
			r.Post("/{id}/verify", h.VerifySettlement)
			r.Post("/{id}/recover", h.RecoverSettlement)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/cleanup", h.Cleanup)
			r.Post("/reconcile", h.Reconcile)
			r.Post("/invoices/repair", h.RepairInvoices)
		})

		r.Get("/health", h.Health)
	})

	return r
}
