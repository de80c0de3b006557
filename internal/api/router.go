// Package api implements the HTTP API (component J): REST surface for
// webhook endpoint CRUD, delivery history, admin retry, and health checks,
// grounded on cloud/internal/api/router.go's chi + standard middleware
// wiring.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sanderm5/Sky-planner-sub006/internal/authn"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/delivery"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/dispatch"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo"
)

// Deps are the collaborators the HTTP API wires into handlers.
type Deps struct {
	Repo       repo.Repository
	Engine     *delivery.Engine
	Dispatcher *dispatch.Dispatcher
	Auth       *authn.TokenService
	Hub        *realtime.Hub
}

// NewRouter builds the full chi mux: webhook CRUD behind JWT auth, the hub
// upgrade endpoint, and unauthenticated health/readiness probes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	h := &handlers{deps: deps}

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/ws", deps.Hub.ServeWS)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(cookieAuthMiddleware(deps.Auth))

		r.Route("/endpoints", func(r chi.Router) {
			r.Post("/", h.createEndpoint)
			r.Get("/", h.listEndpoints)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getEndpoint)
				r.Patch("/", h.updateEndpoint)
				r.Delete("/", h.deleteEndpoint)
				r.Post("/rotate-secret", h.rotateSecret)
				r.Get("/deliveries", h.listDeliveries)
			})
		})

		r.Post("/deliveries/{id}/retry", h.retryDelivery)
	})

	return r
}
