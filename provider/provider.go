package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// ConfigField represents a configuration field accepted by a gateway
type ConfigField struct {
	Key         string   `json:"key"`
	Required    bool     `json:"required"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Example     string   `json:"example"`
	Pattern     string   `json:"pattern,omitempty"`
	MinLength   int      `json:"minLength,omitempty"`
	MaxLength   int      `json:"maxLength,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// OrderRequest describes a checkout order. Amount is passed through unchanged.
type OrderRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Currency    string `json:"currency,omitempty" validate:"omitempty,len=3"`
	Description string `json:"description,omitempty"`
	ReturnURL   string `json:"returnUrl,omitempty" validate:"omitempty,url"`
	CancelURL   string `json:"cancelUrl,omitempty" validate:"omitempty,url"`
	RequestID   string `json:"requestId,omitempty"`
}

// RefundRequest refunds part or all of a prior capture
type RefundRequest struct {
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// GatewayResponse is a processor response returned verbatim
type GatewayResponse struct {
	StatusCode int    `json:"statusCode"`
	Raw        []byte `json:"-"`
	// Data holds the decoded body, or nil when the body is not JSON
	Data any `json:"data,omitempty"`
}

// NewGatewayResponse wraps an HTTP response, decoding the body when it is JSON
func NewGatewayResponse(resp *HTTPResponse) *GatewayResponse {
	if resp == nil {
		return nil
	}
	out := &GatewayResponse{StatusCode: resp.StatusCode, Raw: resp.Body}
	if len(resp.Body) > 0 && json.Valid(resp.Body) {
		var data any
		if err := json.Unmarshal(resp.Body, &data); err == nil {
			out.Data = data
		}
	}
	return out
}

// NotificationEnvelope is an inbound webhook as received: headers and raw body
type NotificationEnvelope struct {
	Headers map[string]string
	Body    []byte
}

// Header looks up name as given, then in capitalized-hyphen form, then case
// insensitively. Missing headers yield "".
func (n NotificationEnvelope) Header(name string) string {
	if v, ok := n.Headers[name]; ok {
		return v
	}
	if v, ok := n.Headers[capitalizeHeader(name)]; ok {
		return v
	}
	for key, v := range n.Headers {
		if strings.EqualFold(key, name) {
			return v
		}
	}
	return ""
}

// capitalizeHeader turns PAYPAL-AUTH-ALGO into Paypal-Auth-Algo
func capitalizeHeader(name string) string {
	parts := strings.Split(strings.ToLower(name), "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "-")
}

// EncryptedResource is an AEAD-sealed payload carried inside a notification.
// Ciphertext, IV and Tag are base64; AAD is used as given.
type EncryptedResource struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	AAD        string `json:"aad,omitempty"`
}

// PaymentProvider is the contract every gateway implements
type PaymentProvider interface {
	// Initialize configures the gateway from a flat key/value map
	Initialize(config map[string]string) error

	// GetRequiredConfig describes the configuration keys the gateway accepts
	GetRequiredConfig(environment string) []ConfigField

	// ValidateConfig checks a configuration map without applying it
	ValidateConfig(config map[string]string) error

	// CreateOrder creates a checkout order and returns the buyer approval URL
	CreateOrder(ctx context.Context, request OrderRequest) (string, error)

	// CaptureOrder captures an approved order
	CaptureOrder(ctx context.Context, orderID string) (*GatewayResponse, error)

	// QueryOrder fetches the current order resource
	QueryOrder(ctx context.Context, orderID string) (*GatewayResponse, error)

	// Refund refunds amount of a capture in currency
	Refund(ctx context.Context, captureID, amount, currency string) (*GatewayResponse, error)

	// VerifyNotify reports whether a notification was sent by the processor
	VerifyNotify(ctx context.Context, envelope NotificationEnvelope) (bool, error)

	// DecryptResource recovers the plaintext of an encrypted resource
	DecryptResource(resource EncryptedResource) ([]byte, error)
}

// ResourceExtractor is implemented by gateways whose notifications can carry
// an encrypted resource
type ResourceExtractor interface {
	ExtractResource(event []byte) (EncryptedResource, bool)
}

// ProviderFactory creates a new, uninitialized PaymentProvider
type ProviderFactory func() PaymentProvider
