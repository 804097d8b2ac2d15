// Package provider defines the gateway abstraction PayGate serves: the
// PaymentProvider interface, the registry gateways add themselves to, the
// PaymentService that resolves a gateway per tenant, and the shared HTTP,
// caching and error plumbing gateway packages build on.
//
// # Core Concepts
//
//   - PaymentProvider: what every gateway implements (orders, refunds,
//     notification verification, resource decryption)
//   - ProviderRegistry: name to factory mapping, filled from init functions
//   - PaymentService: default gateways plus per-tenant gateways loaded from a ConfigStore
//   - ProviderHTTPClient: JSON, form and raw requests with call recording
//   - Cache: LRU cache with per-entry expiry used for tenants, tokens and certificates
//   - Error: classified failures (config, transport, protocol, crypto)
//
// # Basic Usage
//
//	import _ "github.com/mstgnz/paygate/provider/paypal" // registers "paypal"
//
//	service := provider.NewPaymentService(nil)
//	err := service.AddProvider("paypal", map[string]string{
//	    "clientId":     "your-client-id",
//	    "clientSecret": "your-client-secret",
//	    "environment":  "sandbox",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	approveURL, err := service.CreateOrder(ctx, "", "paypal", provider.OrderRequest{
//	    Amount:   "10.00",
//	    Currency: "USD",
//	})
//
// # Multi-Tenant Usage
//
// With a ConfigStore attached, a tenant ID selects a gateway built from that
// tenant's stored configuration. Tenants without one fall back to the default
// gateway of the same name:
//
//	service := provider.NewPaymentService(nil, provider.WithConfigStore(store))
//	resp, err := service.CaptureOrder(ctx, "acme", "paypal", orderID)
//
// Built gateways are cached; call InvalidateTenant after changing a tenant's
// configuration.
//
// # Error Handling
//
// Every gateway error is an *Error. Use KindOf to branch on the failure class:
//
//	if _, err := service.Refund(ctx, tenant, "paypal", captureID, req); err != nil {
//	    switch provider.KindOf(err) {
//	    case provider.KindConfig:
//	        // fix configuration, retrying will not help
//	    case provider.KindTransport:
//	        // network failure or non-2xx; *HTTPStatusError carries the status
//	    case provider.KindProtocol:
//	        // the processor answered without an expected field
//	    }
//	}
//
// Order calls that receive a non-2xx response return the GatewayResponse
// together with the error so callers can inspect the processor's body.
package provider
