/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for billing front-ends

ROUTE GROUPS:
  /api/calculations/*    Calculation lifecycle
  /api/jurisdictions/*   Address resolution
  /api/rates             Rate lookup
  /api/exemptions        Exemption lookup
  /api/reference         Reference data loading
  /api/scenarios/*       Demo scenarios
  /healthz               Liveness probe

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
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/calculations", func(r chi.Router) {
			r.Get("/", h.ListCalculations)
			r.Post("/", h.Calculate)
			r.Get("/{id}", h.GetCalculation)
			r.Post("/{id}/apply", h.ApplyCalculation)
			r.Post("/{id}/adjust", h.AdjustCalculation)
			r.Post("/{id}/void", h.VoidCalculation)
			r.Post("/{id}/verify", h.VerifyCalculation)
		})

		r.Post("/jurisdictions/resolve", h.ResolveJurisdictions)
		r.Get("/rates", h.ListRates)
		r.Get("/exemptions", h.ListExemptions)
		r.Post("/reference", h.LoadReference)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Tax Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Tax Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/calculations">/api/calculations</a> - List calculations</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
<li><a href="/healthz">/healthz</a> - Health</li>
</ul>
</body>
</html>`))
	})

	return r
}
