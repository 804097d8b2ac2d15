// Package handler provides the HTTP handlers of the paygate service.
//
// Handlers bridge chi routes to provider.PaymentService and to the
// supporting stores. Every response uses the envelope written by the
// response package:
//
//	{"code": 201, "success": true, "message": "Order created", "data": {...}}
//
// # Payment Handler
//
//	paymentHandler := handler.NewPaymentHandler(paymentService, validator.New(), 30*time.Second)
//
//	r.Post("/v1/{provider}/orders", paymentHandler.CreateOrder)
//	r.Get("/v1/{provider}/orders/{orderID}", paymentHandler.QueryOrder)
//	r.Post("/v1/{provider}/orders/{orderID}/capture", paymentHandler.CaptureOrder)
//	r.Post("/v1/{provider}/captures/{captureID}/refund", paymentHandler.Refund)
//	r.Post("/webhooks/{provider}", paymentHandler.HandleWebhook)
//
// The tenant comes from the credential checked by middle.AuthMiddleware.
// Tenants with a stored configuration use their own gateway credentials,
// the rest use the gateway configured from the environment.
//
// Gateway errors map to HTTP statuses by kind (see StatusForError):
//
//   - config: 500
//   - transport and protocol: 502
//   - crypto: 400
//   - unknown provider or missing tenant configuration: 404
//
// When the processor answered with a non-2xx status its decoded body is
// returned in data alongside the error.
//
// # Webhooks
//
// HandleWebhook verifies the delivery with the gateway and answers 401
// when it is not authentic. The tenant is read from ?tenant=, then from
// the X-Tenant-ID header. Verified deliveries that carry an encrypted
// resource are decrypted and the plaintext is returned as data.resource.
//
// # Configuration Handler
//
//	r.With(admin).Get("/v1/config", configHandler.ListTenantConfigs)
//	r.With(admin).Get("/v1/config/stats", configHandler.GetStats)
//	r.Get("/v1/config/{provider}", configHandler.GetTenantConfig)
//	r.Put("/v1/config/{provider}", configHandler.SaveTenantConfig)
//	r.Delete("/v1/config/{provider}", configHandler.DeleteTenantConfig)
//	r.Get("/v1/config/{provider}/fields", configHandler.GetRequiredFields)
//
// Configurations are validated by the gateway before they are stored, and
// secret values are masked in every response.
//
// # Auth Handler
//
// AuthHandler issues tenant tokens. IssueToken is mounted behind
// middle.RequireAdmin; RefreshToken renews the calling tenant token.
//
// # Logs Handler
//
// LogsHandler reads the gateway call log recorded in OpenSearch. It answers
// 503 when OpenSearch logging is disabled.
package handler
