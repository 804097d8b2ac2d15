package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/middle"
)

// Handlers groups the handlers mounted by Routes
type Handlers struct {
	Auth    *handler.AuthHandler
	Payment *handler.PaymentHandler
	Config  *handler.ConfigHandler
	Logs    *handler.LogsHandler
}

// Routes registers the v1 API routes. The caller must have mounted
// AuthMiddleware. Static segments are registered before the {provider}
// catch-all so they take precedence.
func Routes(r chi.Router, h Handlers) {
	admin := middle.RequireAdmin()

	r.Route("/auth", func(r chi.Router) {
		r.With(admin).Post("/token", h.Auth.IssueToken)
		r.Post("/refresh", h.Auth.RefreshToken)
	})

	r.Route("/config", func(r chi.Router) {
		r.With(admin).Get("/", h.Config.ListTenantConfigs)
		r.With(admin).Get("/stats", h.Config.GetStats)
		r.Get("/{provider}", h.Config.GetTenantConfig)
		r.Put("/{provider}", h.Config.SaveTenantConfig)
		r.Delete("/{provider}", h.Config.DeleteTenantConfig)
		r.Get("/{provider}/fields", h.Config.GetRequiredFields)
	})

	r.Route("/logs/{provider}", func(r chi.Router) {
		r.Get("/", h.Logs.ListCalls)
		r.Get("/stats", h.Logs.GetCallStats)
	})

	r.Route("/{provider}", func(r chi.Router) {
		r.Post("/orders", h.Payment.CreateOrder)
		r.Get("/orders/{orderID}", h.Payment.QueryOrder)
		r.Post("/orders/{orderID}/capture", h.Payment.CaptureOrder)
		r.Post("/captures/{captureID}/refund", h.Payment.Refund)
	})
}
