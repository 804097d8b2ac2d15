package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
)

const defaultRequestTimeout = 30 * time.Second

// PaymentService is the subset of provider.PaymentService the handlers use
type PaymentService interface {
	CreateOrder(ctx context.Context, tenantID, name string, request provider.OrderRequest) (string, error)
	CaptureOrder(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error)
	QueryOrder(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error)
	Refund(ctx context.Context, tenantID, name, captureID string, request provider.RefundRequest) (*provider.GatewayResponse, error)
	VerifyNotify(ctx context.Context, tenantID, name string, envelope provider.NotificationEnvelope) (bool, error)
	OpenNotification(tenantID, name string, body []byte) ([]byte, bool, error)
}

// PaymentHandler serves order and webhook endpoints
type PaymentHandler struct {
	paymentService PaymentService
	validate       *validator.Validate
	timeout        time.Duration
}

// NewPaymentHandler creates a payment handler. A non-positive timeout uses 30s.
func NewPaymentHandler(paymentService PaymentService, validate *validator.Validate, timeout time.Duration) *PaymentHandler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &PaymentHandler{
		paymentService: paymentService,
		validate:       validate,
		timeout:        timeout,
	}
}

// StatusForError maps a gateway error to the HTTP status returned to callers
func StatusForError(err error) int {
	switch {
	case errors.Is(err, provider.ErrUnknownProvider), errors.Is(err, config.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch provider.KindOf(err) {
	case provider.KindTransport, provider.KindProtocol:
		return http.StatusBadGateway
	case provider.KindCrypto:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// orderResult is the body returned for capture, query and refund calls
type orderResult struct {
	StatusCode int `json:"statusCode"`
	Data       any `json:"data,omitempty"`
}

func resultOf(resp *provider.GatewayResponse) *orderResult {
	if resp == nil {
		return nil
	}
	return &orderResult{StatusCode: resp.StatusCode, Data: resp.Data}
}

// CreateOrder handles POST /v1/{provider}/orders
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	providerName := chi.URLParam(r, "provider")
	tenantID := middle.GetTenantIDFromContext(r.Context())

	var req provider.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = middle.GetRequestIDFromContext(r.Context())
	}

	approveURL, err := h.paymentService.CreateOrder(ctx, tenantID, providerName, req)
	if err != nil {
		response.Error(w, StatusForError(err), "Order creation failed", err)
		return
	}

	response.Success(w, http.StatusCreated, "Order created", map[string]string{
		"approveUrl": approveURL,
	})
}

// CaptureOrder handles POST /v1/{provider}/orders/{orderID}/capture
func (h *PaymentHandler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, "orderID", "Order captured", "Order capture failed",
		func(ctx context.Context, tenantID, providerName, orderID string) (*provider.GatewayResponse, error) {
			return h.paymentService.CaptureOrder(ctx, tenantID, providerName, orderID)
		})
}

// QueryOrder handles GET /v1/{provider}/orders/{orderID}
func (h *PaymentHandler) QueryOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, "orderID", "Order retrieved", "Order query failed",
		func(ctx context.Context, tenantID, providerName, orderID string) (*provider.GatewayResponse, error) {
			return h.paymentService.QueryOrder(ctx, tenantID, providerName, orderID)
		})
}

// Refund handles POST /v1/{provider}/captures/{captureID}/refund
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req provider.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	h.withOrder(w, r, "captureID", "Refund issued", "Refund failed",
		func(ctx context.Context, tenantID, providerName, captureID string) (*provider.GatewayResponse, error) {
			return h.paymentService.Refund(ctx, tenantID, providerName, captureID, req)
		})
}

type orderCall func(ctx context.Context, tenantID, providerName, id string) (*provider.GatewayResponse, error)

// withOrder runs call for the id in URL parameter param. A processor response
// that came back with an error is still included in the error body.
func (h *PaymentHandler) withOrder(w http.ResponseWriter, r *http.Request, param, okMsg, failMsg string, call orderCall) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := strings.TrimSpace(chi.URLParam(r, param))
	if id == "" {
		response.Error(w, http.StatusBadRequest, param+" is required", nil)
		return
	}

	resp, err := call(ctx, middle.GetTenantIDFromContext(r.Context()), chi.URLParam(r, "provider"), id)
	if err != nil {
		status := StatusForError(err)
		if resp != nil {
			_ = response.WriteJSON(w, status, response.Response{
				Code:    status,
				Success: false,
				Message: failMsg,
				Error:   err.Error(),
				Data:    resultOf(resp),
			})
			return
		}
		response.Error(w, status, failMsg, err)
		return
	}

	response.Success(w, http.StatusOK, okMsg, resultOf(resp))
}

// HandleWebhook handles POST /webhooks/{provider}. The route is not behind
// AuthMiddleware: the tenant comes from ?tenant= or X-Tenant-ID and the
// delivery is authenticated by verifying it with that tenant's gateway.
// Unverified deliveries get 401 so the processor retries them.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	providerName := chi.URLParam(r, "provider")
	if providerName == "" {
		response.Error(w, http.StatusBadRequest, "Provider parameter is required", nil)
		return
	}
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenantID == "" {
		tenantID = strings.TrimSpace(r.Header.Get(middle.TenantHeader))
	}
	log := logger.WithTenantAndProvider(tenantID, providerName).
		SetRequestID(middle.GetRequestIDFromContext(r.Context()))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Unable to read webhook body", err)
		return
	}

	envelope := provider.NotificationEnvelope{
		Headers: make(map[string]string, len(r.Header)),
		Body:    body,
	}
	for key, values := range r.Header {
		if len(values) > 0 {
			envelope.Headers[key] = values[0]
		}
	}

	verified, err := h.paymentService.VerifyNotify(ctx, tenantID, providerName, envelope)
	if err != nil {
		log.Error("Webhook verification failed", err)
		response.Error(w, StatusForError(err), "Webhook verification failed", err)
		return
	}
	if !verified {
		log.Warn("Webhook signature rejected")
		response.Error(w, http.StatusUnauthorized, "Invalid webhook signature", nil)
		return
	}

	result := map[string]any{"verified": true}
	if event := eventSummary(body); event != nil {
		result["event"] = event
	}

	plaintext, found, err := h.paymentService.OpenNotification(tenantID, providerName, body)
	if err != nil {
		log.Error("Webhook resource could not be decrypted", err)
		response.Error(w, StatusForError(err), "Webhook resource could not be decrypted", err)
		return
	}
	if found {
		var resource any
		if json.Unmarshal(plaintext, &resource) != nil {
			resource = string(plaintext)
		}
		result["resource"] = resource
	}

	log.AddField("decrypted", found).Info("Webhook accepted")
	response.Success(w, http.StatusOK, "Webhook received", result)
}

// eventSummary picks the identifying fields of a webhook event
func eventSummary(body []byte) map[string]string {
	var event struct {
		ID           string `json:"id"`
		EventType    string `json:"event_type"`
		ResourceType string `json:"resource_type"`
	}
	if json.Unmarshal(body, &event) != nil || event.ID == "" {
		return nil
	}
	return map[string]string{
		"id":           event.ID,
		"eventType":    event.EventType,
		"resourceType": event.ResourceType,
	}
}
