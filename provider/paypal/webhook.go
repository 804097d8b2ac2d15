package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mstgnz/paygate/provider"
)

const (
	endpointVerifyWebhook = "/v1/notifications/verify-webhook-signature"

	headerAuthAlgo         = "PAYPAL-AUTH-ALGO"
	headerCertURL          = "PAYPAL-CERT-URL"
	headerTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	headerTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	headerTransmissionTime = "PAYPAL-TRANSMISSION-TIME"

	statusSuccess = "SUCCESS"
)

// transmission holds the signature headers of one webhook delivery
type transmission struct {
	AuthAlgo string
	CertURL  string
	ID       string
	Sig      string
	Time     string
}

func transmissionFrom(env provider.NotificationEnvelope) transmission {
	return transmission{
		AuthAlgo: env.Header(headerAuthAlgo),
		CertURL:  env.Header(headerCertURL),
		ID:       env.Header(headerTransmissionID),
		Sig:      env.Header(headerTransmissionSig),
		Time:     env.Header(headerTransmissionTime),
	}
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus *string `json:"verification_status"`
}

// WebhookVerifier asks the processor whether a delivery carries a valid signature
type WebhookVerifier struct {
	cfg    Config
	client *provider.ProviderHTTPClient
	tokens TokenSource
}

// NewWebhookVerifier creates a remote webhook verifier
func NewWebhookVerifier(cfg Config, client *provider.ProviderHTTPClient, tokens TokenSource) *WebhookVerifier {
	return &WebhookVerifier{cfg: cfg, client: client, tokens: tokens}
}

// Verify is true only when the processor answers verification_status SUCCESS.
// Any other status is (false, nil); every failure to get an answer is false
// with an error.
func (v *WebhookVerifier) Verify(ctx context.Context, env provider.NotificationEnvelope) (bool, error) {
	const op = "verify webhook"

	if v.cfg.WebhookID == "" {
		return false, provider.NewError(provider.KindConfig, providerName, op, provider.ErrMissingWebhookID)
	}

	token, err := v.tokens.Token(ctx)
	if err != nil {
		return false, err
	}

	t := transmissionFrom(env)
	payload, err := encodeVerifyRequest(verifyRequest{
		AuthAlgo:         t.AuthAlgo,
		CertURL:          t.CertURL,
		TransmissionID:   t.ID,
		TransmissionSig:  t.Sig,
		TransmissionTime: t.Time,
		WebhookID:        v.cfg.WebhookID,
		WebhookEvent:     webhookEvent(env.Body),
	})
	if err != nil {
		return false, provider.NewError(provider.KindProtocol, providerName, op, err)
	}

	resp, err := v.client.SendRaw(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointVerifyWebhook,
		Headers: map[string]string{
			"Authorization": "Bearer " + token.Value,
			"Content-Type":  "application/json",
		},
		Body: payload,
	})
	if err != nil {
		return false, provider.NewError(provider.KindTransport, providerName, op, err)
	}

	var body verifyResponse
	if err := v.client.ParseJSONResponse(resp, &body); err != nil {
		return false, provider.NewError(provider.KindProtocol, providerName, op,
			fmt.Errorf("decode verification response: %w", err))
	}
	if body.VerificationStatus == nil {
		return false, provider.NewError(provider.KindProtocol, providerName, op, provider.ErrNoVerificationStatus)
	}

	return *body.VerificationStatus == statusSuccess, nil
}

// encodeVerifyRequest keeps <, > and & unescaped so the embedded event stays
// byte-for-byte what the processor sent, apart from insignificant whitespace
func encodeVerifyRequest(req verifyRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("encode verification request: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// webhookEvent embeds the body as JSON when it decodes to a non-empty value,
// otherwise it sends the raw body as a JSON string
func webhookEvent(body []byte) json.RawMessage {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil && !isEmptyJSON(decoded) {
		return json.RawMessage(bytes.TrimSpace(body))
	}
	raw, _ := json.Marshal(string(body))
	return raw
}

func isEmptyJSON(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == "" || t == "0"
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
