package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/middle"
	v1 "github.com/mstgnz/paygate/router/v1"

	// Import for side-effect registration
	_ "github.com/mstgnz/paygate/provider/paypal"
)

// Handlers groups every handler and guard the service mounts
type Handlers struct {
	v1.Handlers
	Health *handler.HealthHandler
	// Authenticate guards /v1. When nil every /v1 request is refused.
	Authenticate func(http.Handler) http.Handler
	// RateLimit runs after Authenticate so it can count per tenant. Optional.
	RateLimit func(http.Handler) http.Handler
}

// Routes mounts the public endpoints and the v1 API on r. Webhooks and the
// health check live outside /v1 so processors and load balancers reach them without
// credentials.
func Routes(r chi.Router, h Handlers) {
	authenticate := h.Authenticate
	if authenticate == nil {
		authenticate = middle.AuthMiddleware(nil, "")
	}

	r.Get("/health", h.Health.CheckHealth)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/{provider}", h.Payment.HandleWebhook)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authenticate)
		if h.RateLimit != nil {
			r.Use(h.RateLimit)
		}
		v1.Routes(r, h.Handlers)
	})
}
