// Package paygate is a PayPal checkout gateway. It can be embedded as a
// library or run as a multi-tenant HTTP service.
//
// # Overview
//
// The provider/paypal package talks to the PayPal REST API:
//
//   - OAuth2 client-credentials tokens, cached until shortly before expiry
//   - order creation, returning the buyer approval URL
//   - order capture, query and capture refunds
//   - webhook verification, remote through PayPal or local against the signing certificate
//   - AES-256-GCM decryption of encrypted notification resources
//
// provider.PaymentService sits in front of the gateways. It resolves the
// gateway for a tenant, falling back to the one configured from the
// environment, and logs every operation.
//
// # Library Use
//
//	gw, err := paypal.New(paypal.Config{
//	    ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
//	    ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
//	    WebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),
//	})
//	if err != nil {
//	    return err
//	}
//
// New talks to the sandbox. Pass paypal.WithLive() for the production API.
//
//	approveURL, err := gw.CreateOrder(ctx, provider.OrderRequest{
//	    Amount:    "10.00",
//	    Currency:  "USD",
//	    ReturnURL: "https://shop.example.com/paypal/return",
//	})
//
// Every error returned by a gateway is a *provider.Error. Its Kind tells
// configuration, transport, protocol and decryption failures apart:
//
//	if provider.KindOf(err) == provider.KindTransport {
//	    // retry later
//	}
//
// # HTTP Service
//
// cmd/main.go serves the gateway over HTTP:
//
//	POST   /v1/{provider}/orders
//	GET    /v1/{provider}/orders/{orderID}
//	POST   /v1/{provider}/orders/{orderID}/capture
//	POST   /v1/{provider}/captures/{captureID}/refund
//	POST   /v1/auth/token
//	POST   /v1/auth/refresh
//	POST   /webhooks/{provider}
//	GET    /health
//
// Every /v1 request needs "Authorization: Bearer <credential>". The
// credential is the admin API_KEY or a tenant token issued through
// /v1/auth/token. A tenant token fixes the tenant; the admin key acts for
// the tenant named in X-Tenant-ID. Tenants use their stored gateway
// configuration, managed under /v1/config and kept in SQLite.
//
// Webhooks are not authenticated by bearer credentials. The tenant is taken
// from ?tenant= or X-Tenant-ID and the delivery signature is verified.
//
// # Configuration
//
// The service reads its settings from the environment, optionally loaded
// from a .env file:
//
//	APP_PORT=9999
//	APP_ENV=development
//	SQLITE_PATH=./data/paygate.db
//	REQUEST_TIMEOUT=30s
//	LOGGING_LEVEL=info
//	RATE_LIMIT_PER_MINUTE=100
//	API_KEY=...
//	JWT_SECRET=...          # at least 32 bytes
//	JWT_EXPIRY=12h
//
//	PAYPAL_CLIENT_ID=...
//	PAYPAL_CLIENT_SECRET=...
//	PAYPAL_ENVIRONMENT=sandbox
//	PAYPAL_WEBHOOK_ID=...
//	PAYPAL_ENCRYPT_KEY=...
//	PAYPAL_VERIFY_MODE=remote
//
// # Logging
//
// System logs go to the console. With ENABLE_OPENSEARCH_LOGGING=true they
// are also indexed in OpenSearch, together with every outbound gateway
// call. Recorded calls can be searched under /v1/logs/{provider}.
package paygate
