package paypal

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/mstgnz/paygate/provider"
)

const (
	endpointOrders  = "/v2/checkout/orders"
	endpointOrder   = "/v2/checkout/orders/%s"
	endpointCapture = "/v2/checkout/orders/%s/capture"
	endpointRefund  = "/v2/payments/captures/%s/refund"

	relApprove = "approve"
)

type money struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type purchaseUnit struct {
	Amount      money  `json:"amount"`
	Description string `json:"description"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type orderPayload struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type refundPayload struct {
	Amount money `json:"amount"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

// OrderService runs the order lifecycle: create, capture, query and refund.
// None of the calls are retried.
type OrderService struct {
	cfg    Config
	client *provider.ProviderHTTPClient
	tokens TokenSource
}

// NewOrderService creates an order service
func NewOrderService(cfg Config, client *provider.ProviderHTTPClient, tokens TokenSource) *OrderService {
	return &OrderService{cfg: cfg, client: client, tokens: tokens}
}

// CreateOrder submits a CAPTURE intent order and returns the approve link
func (s *OrderService) CreateOrder(ctx context.Context, req provider.OrderRequest) (string, error) {
	const op = "create order"

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.cfg.CancelURL
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	payload := orderPayload{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      money{Value: req.Amount, CurrencyCode: currency},
			Description: req.Description,
		}},
		ApplicationContext: applicationContext{
			ReturnURL: returnURL,
			CancelURL: cancelURL,
		},
	}

	resp, err := s.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointOrders,
		Headers: map[string]string{
			"Authorization":     "Bearer " + token.Value,
			"PayPal-Request-Id": requestID,
		},
		Body: payload,
	})
	if err != nil {
		return "", provider.NewError(provider.KindTransport, providerName, op, err)
	}

	var order orderResponse
	if err := s.client.ParseJSONResponse(resp, &order); err != nil {
		return "", provider.NewError(provider.KindProtocol, providerName, op,
			fmt.Errorf("decode order response: %w", err))
	}

	href := approveLink(order.Links)
	if href == "" {
		return "", provider.NewError(provider.KindProtocol, providerName, op, provider.ErrNoApproveLink)
	}
	return href, nil
}

// approveLink returns the href of the first link whose rel is exactly "approve"
func approveLink(links []link) string {
	for _, l := range links {
		if l.Rel == relApprove {
			return l.Href
		}
	}
	return ""
}

// CaptureOrder posts an empty body to the capture endpoint
func (s *OrderService) CaptureOrder(ctx context.Context, orderID string) (*provider.GatewayResponse, error) {
	return s.call(ctx, "capture order", orderID, "POST", endpointCapture, nil)
}

// QueryOrder fetches the order resource
func (s *OrderService) QueryOrder(ctx context.Context, orderID string) (*provider.GatewayResponse, error) {
	return s.call(ctx, "query order", orderID, "GET", endpointOrder, nil)
}

// Refund refunds amount of a capture. currency defaults to USD.
func (s *OrderService) Refund(ctx context.Context, captureID, amount, currency string) (*provider.GatewayResponse, error) {
	if currency == "" {
		currency = defaultCurrency
	}
	body := refundPayload{Amount: money{Value: amount, CurrencyCode: currency}}
	return s.call(ctx, "refund", captureID, "POST", endpointRefund, body)
}

// call returns the processor response verbatim. A non-2xx status yields both
// the response and a transport error.
func (s *OrderService) call(ctx context.Context, op, id, method, endpoint string, body any) (*provider.GatewayResponse, error) {
	if id == "" {
		return nil, provider.NewError(provider.KindConfig, providerName, op, fmt.Errorf("resource id is required"))
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req := &provider.HTTPRequest{
		Method:   method,
		Endpoint: fmt.Sprintf(endpoint, url.PathEscape(id)),
		Headers: map[string]string{
			"Authorization": "Bearer " + token.Value,
		},
		Body: body,
	}

	var resp *provider.HTTPResponse
	if method == "GET" {
		resp, err = s.client.SendRaw(ctx, req)
	} else {
		resp, err = s.client.SendJSON(ctx, req)
	}

	out := provider.NewGatewayResponse(resp)
	if err != nil {
		return out, provider.NewError(provider.KindTransport, providerName, op, err)
	}
	return out, nil
}
