package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPaymentService struct {
	createOrderFunc      func(ctx context.Context, tenantID, name string, request provider.OrderRequest) (string, error)
	captureOrderFunc     func(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error)
	queryOrderFunc       func(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error)
	refundFunc           func(ctx context.Context, tenantID, name, captureID string, request provider.RefundRequest) (*provider.GatewayResponse, error)
	verifyNotifyFunc     func(ctx context.Context, tenantID, name string, envelope provider.NotificationEnvelope) (bool, error)
	openNotificationFunc func(tenantID, name string, body []byte) ([]byte, bool, error)

	lastTenant   string
	lastProvider string
}

func (m *mockPaymentService) CreateOrder(ctx context.Context, tenantID, name string, request provider.OrderRequest) (string, error) {
	m.lastTenant, m.lastProvider = tenantID, name
	if m.createOrderFunc != nil {
		return m.createOrderFunc(ctx, tenantID, name, request)
	}
	return "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T", nil
}

func (m *mockPaymentService) CaptureOrder(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error) {
	m.lastTenant, m.lastProvider = tenantID, name
	if m.captureOrderFunc != nil {
		return m.captureOrderFunc(ctx, tenantID, name, orderID)
	}
	return &provider.GatewayResponse{StatusCode: 201, Data: map[string]any{"id": orderID, "status": "COMPLETED"}}, nil
}

func (m *mockPaymentService) QueryOrder(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error) {
	m.lastTenant, m.lastProvider = tenantID, name
	if m.queryOrderFunc != nil {
		return m.queryOrderFunc(ctx, tenantID, name, orderID)
	}
	return &provider.GatewayResponse{StatusCode: 200, Data: map[string]any{"id": orderID, "status": "APPROVED"}}, nil
}

func (m *mockPaymentService) Refund(ctx context.Context, tenantID, name, captureID string, request provider.RefundRequest) (*provider.GatewayResponse, error) {
	m.lastTenant, m.lastProvider = tenantID, name
	if m.refundFunc != nil {
		return m.refundFunc(ctx, tenantID, name, captureID, request)
	}
	return &provider.GatewayResponse{StatusCode: 201, Data: map[string]any{"id": "1JU08902781691411", "status": "COMPLETED"}}, nil
}

func (m *mockPaymentService) VerifyNotify(ctx context.Context, tenantID, name string, envelope provider.NotificationEnvelope) (bool, error) {
	m.lastTenant, m.lastProvider = tenantID, name
	if m.verifyNotifyFunc != nil {
		return m.verifyNotifyFunc(ctx, tenantID, name, envelope)
	}
	return true, nil
}

func (m *mockPaymentService) OpenNotification(tenantID, name string, body []byte) ([]byte, bool, error) {
	if m.openNotificationFunc != nil {
		return m.openNotificationFunc(tenantID, name, body)
	}
	return nil, false, nil
}

// newRequest builds a request with chi URL params (key, value pairs) and an
// optional tenant in the context
func newRequest(method, target, body, tenantID string, params ...string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if tenantID != "" {
		ctx = middle.WithTenantID(ctx, tenantID)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func newTestPaymentHandler(svc PaymentService) *PaymentHandler {
	return NewPaymentHandler(svc, validator.New(), time.Second)
}

func TestNewPaymentHandler(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{}, validator.New(), 0)
	require.NotNil(t, h)
	assert.Equal(t, defaultRequestTimeout, h.timeout)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"unknown_provider", fmt.Errorf("provider x is not configured: %w", provider.ErrUnknownProvider), http.StatusNotFound},
		{"missing_tenant_config", config.ErrConfigNotFound, http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"config", provider.NewError(provider.KindConfig, "paypal", "create order", provider.ErrMissingCredentials), http.StatusInternalServerError},
		{"transport", provider.NewError(provider.KindTransport, "paypal", "capture order", &provider.HTTPStatusError{StatusCode: 422}), http.StatusBadGateway},
		{"protocol", provider.NewError(provider.KindProtocol, "paypal", "create order", provider.ErrNoApproveLink), http.StatusBadGateway},
		{"crypto", provider.NewError(provider.KindCrypto, "paypal", "decrypt resource", provider.ErrDecryptFailed), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusForError(tt.err))
		})
	}
}

func TestPaymentHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		tenantID       string
		body           string
		mockFunc       func(ctx context.Context, tenantID, name string, request provider.OrderRequest) (string, error)
		expectedStatus int
	}{
		{
			name:           "created",
			body:           `{"amount":"10.00","currency":"USD","returnUrl":"https://shop.example.com/return"}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "created_for_tenant",
			tenantID:       "acme",
			body:           `{"amount":"10.00"}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid_json",
			body:           `{"amount": 10.00`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing_amount",
			body:           `{"currency":"USD"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad_currency",
			body:           `{"amount":"10.00","currency":"DOLLAR"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad_return_url",
			body:           `{"amount":"10.00","returnUrl":"not a url"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "no_approve_link",
			body: `{"amount":"10.00"}`,
			mockFunc: func(ctx context.Context, tenantID, name string, request provider.OrderRequest) (string, error) {
				return "", provider.NewError(provider.KindProtocol, "paypal", "create order", provider.ErrNoApproveLink)
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "missing_credentials",
			body: `{"amount":"10.00"}`,
			mockFunc: func(ctx context.Context, tenantID, name string, request provider.OrderRequest) (string, error) {
				return "", provider.NewError(provider.KindConfig, "paypal", "fetch token", provider.ErrMissingCredentials)
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{createOrderFunc: tt.mockFunc}
			h := newTestPaymentHandler(svc)

			w := httptest.NewRecorder()
			h.CreateOrder(w, newRequest(http.MethodPost, "/v1/paypal/orders", tt.body, tt.tenantID, "provider", "paypal"))

			assert.Equal(t, tt.expectedStatus, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.expectedStatus < 300, body["success"])

			if tt.expectedStatus == http.StatusCreated {
				data := body["data"].(map[string]any)
				assert.Contains(t, data["approveUrl"], "token=5O190127TN364715T")
				assert.Equal(t, tt.tenantID, svc.lastTenant)
				assert.Equal(t, "paypal", svc.lastProvider)
			}
		})
	}
}

func TestPaymentHandler_CreateOrderUsesRequestID(t *testing.T) {
	var got provider.OrderRequest
	svc := &mockPaymentService{
		createOrderFunc: func(ctx context.Context, tenantID, name string, request provider.OrderRequest) (string, error) {
			got = request
			return "https://approve", nil
		},
	}
	h := newTestPaymentHandler(svc)

	req := newRequest(http.MethodPost, "/v1/paypal/orders", `{"amount":"5.00"}`, "", "provider", "paypal")
	req = req.WithContext(middle.WithRequestID(req.Context(), "req-42"))
	h.CreateOrder(httptest.NewRecorder(), req)
	assert.Equal(t, "req-42", got.RequestID)

	req = newRequest(http.MethodPost, "/v1/paypal/orders", `{"amount":"5.00","requestId":"mine"}`, "", "provider", "paypal")
	req = req.WithContext(middle.WithRequestID(req.Context(), "req-42"))
	h.CreateOrder(httptest.NewRecorder(), req)
	assert.Equal(t, "mine", got.RequestID)
}

func TestPaymentHandler_CaptureOrder(t *testing.T) {
	t.Run("captured", func(t *testing.T) {
		h := newTestPaymentHandler(&mockPaymentService{})
		w := httptest.NewRecorder()
		h.CaptureOrder(w, newRequest(http.MethodPost, "/v1/paypal/orders/5O190127TN364715T/capture", "", "",
			"provider", "paypal", "orderID", "5O190127TN364715T"))

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeBody(t, w)["data"].(map[string]any)
		assert.EqualValues(t, 201, data["statusCode"])
		assert.Equal(t, "COMPLETED", data["data"].(map[string]any)["status"])
	})

	t.Run("missing_order_id", func(t *testing.T) {
		h := newTestPaymentHandler(&mockPaymentService{})
		w := httptest.NewRecorder()
		h.CaptureOrder(w, newRequest(http.MethodPost, "/v1/paypal/orders//capture", "", "", "provider", "paypal"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("processor_rejects", func(t *testing.T) {
		svc := &mockPaymentService{
			captureOrderFunc: func(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error) {
				resp := &provider.GatewayResponse{
					StatusCode: 422,
					Data:       map[string]any{"name": "UNPROCESSABLE_ENTITY"},
				}
				return resp, provider.NewError(provider.KindTransport, "paypal", "capture order",
					&provider.HTTPStatusError{StatusCode: 422, Body: `{"name":"UNPROCESSABLE_ENTITY"}`})
			},
		}
		h := newTestPaymentHandler(svc)
		w := httptest.NewRecorder()
		h.CaptureOrder(w, newRequest(http.MethodPost, "/", "", "", "provider", "paypal", "orderID", "X"))

		require.Equal(t, http.StatusBadGateway, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "HTTP error 422")
		data := body["data"].(map[string]any)
		assert.EqualValues(t, 422, data["statusCode"], "processor response is passed through")
	})

	t.Run("network_failure", func(t *testing.T) {
		svc := &mockPaymentService{
			captureOrderFunc: func(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error) {
				return nil, provider.NewError(provider.KindTransport, "paypal", "capture order", errors.New("connection refused"))
			},
		}
		h := newTestPaymentHandler(svc)
		w := httptest.NewRecorder()
		h.CaptureOrder(w, newRequest(http.MethodPost, "/", "", "", "provider", "paypal", "orderID", "X"))

		require.Equal(t, http.StatusBadGateway, w.Code)
		assert.NotContains(t, decodeBody(t, w), "data")
	})
}

func TestPaymentHandler_QueryOrder(t *testing.T) {
	svc := &mockPaymentService{}
	h := newTestPaymentHandler(svc)

	w := httptest.NewRecorder()
	h.QueryOrder(w, newRequest(http.MethodGet, "/v1/paypal/orders/ABC", "", "acme",
		"provider", "paypal", "orderID", "ABC"))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "ABC", data["data"].(map[string]any)["id"])
	assert.Equal(t, "acme", svc.lastTenant)
}

func TestPaymentHandler_QueryOrderUnknownProvider(t *testing.T) {
	svc := &mockPaymentService{
		queryOrderFunc: func(ctx context.Context, tenantID, name, orderID string) (*provider.GatewayResponse, error) {
			return nil, fmt.Errorf("provider %s is not configured: %w", name, provider.ErrUnknownProvider)
		},
	}
	h := newTestPaymentHandler(svc)

	w := httptest.NewRecorder()
	h.QueryOrder(w, newRequest(http.MethodGet, "/", "", "", "provider", "stripe", "orderID", "ABC"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentHandler_Refund(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"refunded", `{"amount":"2.50","currency":"USD"}`, http.StatusOK},
		{"missing_amount", `{"currency":"USD"}`, http.StatusBadRequest},
		{"invalid_json", `amount=2.50`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got provider.RefundRequest
			var gotCapture string
			svc := &mockPaymentService{
				refundFunc: func(ctx context.Context, tenantID, name, captureID string, request provider.RefundRequest) (*provider.GatewayResponse, error) {
					got, gotCapture = request, captureID
					return &provider.GatewayResponse{StatusCode: 201}, nil
				},
			}
			h := newTestPaymentHandler(svc)

			w := httptest.NewRecorder()
			h.Refund(w, newRequest(http.MethodPost, "/v1/paypal/captures/3C679366HH908993F/refund", tt.body, "",
				"provider", "paypal", "captureID", "3C679366HH908993F"))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "3C679366HH908993F", gotCapture)
				assert.Equal(t, provider.RefundRequest{Amount: "2.50", Currency: "USD"}, got)
			}
		})
	}
}

const webhookBody = `{"id":"WH-2WR32451HC0233532-67976317FL4543714","event_type":"PAYMENT.CAPTURE.COMPLETED","resource_type":"capture","resource":{"id":"42311647XV020574X"}}`

func TestPaymentHandler_HandleWebhook(t *testing.T) {
	tests := []struct {
		name           string
		verifyFunc     func(ctx context.Context, tenantID, name string, envelope provider.NotificationEnvelope) (bool, error)
		openFunc       func(tenantID, name string, body []byte) ([]byte, bool, error)
		expectedStatus int
		check          func(t *testing.T, body map[string]any)
	}{
		{
			name:           "verified",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				data := body["data"].(map[string]any)
				assert.Equal(t, true, data["verified"])
				event := data["event"].(map[string]any)
				assert.Equal(t, "PAYMENT.CAPTURE.COMPLETED", event["eventType"])
				assert.NotContains(t, data, "resource")
			},
		},
		{
			name: "rejected_signature",
			verifyFunc: func(ctx context.Context, tenantID, name string, envelope provider.NotificationEnvelope) (bool, error) {
				return false, nil
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "verification_unreachable",
			verifyFunc: func(ctx context.Context, tenantID, name string, envelope provider.NotificationEnvelope) (bool, error) {
				return false, provider.NewError(provider.KindTransport, "paypal", "verify notification", errors.New("timeout"))
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "missing_webhook_id",
			verifyFunc: func(ctx context.Context, tenantID, name string, envelope provider.NotificationEnvelope) (bool, error) {
				return false, provider.NewError(provider.KindConfig, "paypal", "verify notification", provider.ErrMissingWebhookID)
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name: "decrypted_resource",
			openFunc: func(tenantID, name string, body []byte) ([]byte, bool, error) {
				return []byte(`{"id":"42311647XV020574X","amount":{"value":"10.00"}}`), true, nil
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				resource := body["data"].(map[string]any)["resource"].(map[string]any)
				assert.Equal(t, "42311647XV020574X", resource["id"])
			},
		},
		{
			name: "non_json_plaintext",
			openFunc: func(tenantID, name string, body []byte) ([]byte, bool, error) {
				return []byte("plain text"), true, nil
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "plain text", body["data"].(map[string]any)["resource"])
			},
		},
		{
			name: "decrypt_failed",
			openFunc: func(tenantID, name string, body []byte) ([]byte, bool, error) {
				return nil, true, provider.NewError(provider.KindCrypto, "paypal", "decrypt resource", provider.ErrDecryptFailed)
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var envelope provider.NotificationEnvelope
			svc := &mockPaymentService{
				verifyNotifyFunc: func(ctx context.Context, tenantID, name string, env provider.NotificationEnvelope) (bool, error) {
					envelope = env
					if tt.verifyFunc != nil {
						return tt.verifyFunc(ctx, tenantID, name, env)
					}
					return true, nil
				},
				openNotificationFunc: tt.openFunc,
			}
			h := newTestPaymentHandler(svc)

			req := newRequest(http.MethodPost, "/webhooks/paypal", webhookBody, "", "provider", "paypal")
			req.Header.Set("Paypal-Transmission-Id", "69cd13f0-d67a-11e5-baa3-778b53f4ae55")
			req.Header.Set("Paypal-Auth-Algo", "SHA256withRSA")

			w := httptest.NewRecorder()
			h.HandleWebhook(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, webhookBody, string(envelope.Body), "raw body reaches verification")
			assert.Equal(t, "SHA256withRSA", envelope.Header("PAYPAL-AUTH-ALGO"))
			if tt.check != nil {
				tt.check(t, decodeBody(t, w))
			}
		})
	}
}

func TestPaymentHandler_HandleWebhookTenantQuery(t *testing.T) {
	svc := &mockPaymentService{}
	h := newTestPaymentHandler(svc)

	w := httptest.NewRecorder()
	h.HandleWebhook(w, newRequest(http.MethodPost, "/webhooks/paypal?tenant=acme", `{}`, "", "provider", "paypal"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", svc.lastTenant)
	assert.NotContains(t, decodeBody(t, w)["data"], "event", "body without an id has no summary")
}

func TestPaymentHandler_HandleWebhookTenantHeader(t *testing.T) {
	svc := &mockPaymentService{}
	h := newTestPaymentHandler(svc)

	req := newRequest(http.MethodPost, "/webhooks/paypal", `{}`, "", "provider", "paypal")
	req.Header.Set(middle.TenantHeader, "globex")
	w := httptest.NewRecorder()
	h.HandleWebhook(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "globex", svc.lastTenant)
}

func TestPaymentHandler_HandleWebhookMissingProvider(t *testing.T) {
	h := newTestPaymentHandler(&mockPaymentService{})

	w := httptest.NewRecorder()
	h.HandleWebhook(w, newRequest(http.MethodPost, "/webhooks/", `{}`, ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
