package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mstgnz/paygate/infra/logger"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// HTTPClientConfig represents configuration for HTTP client
type HTTPClientConfig struct {
	Provider           string
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	DefaultHeaders     map[string]string
	// Client replaces the internally built *http.Client when set
	Client *http.Client
	// Recorder receives one CallRecord per request when set
	Recorder CallRecorder
}

// HTTPRequest represents a standardized HTTP request
type HTTPRequest struct {
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        any
	FormData    map[string]string
	QueryParams map[string]string
}

// HTTPResponse represents a standardized HTTP response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// CallRecord describes one outbound gateway call
type CallRecord struct {
	Provider   string
	Method     string
	Endpoint   string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// CallRecorder is notified after every outbound call
type CallRecorder func(ctx context.Context, rec CallRecord)

// ProviderHTTPClient issues JSON, form and raw requests against a gateway API
type ProviderHTTPClient struct {
	config *HTTPClientConfig
	client *http.Client
}

// NewProviderHTTPClient creates a new provider HTTP client
func NewProviderHTTPClient(config *HTTPClientConfig) *ProviderHTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	client := config.Client
	if client == nil {
		client = &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify},
			},
		}
	}

	return &ProviderHTTPClient{
		config: config,
		client: client,
	}
}

// BaseURL returns the URL relative endpoints are resolved against
func (c *ProviderHTTPClient) BaseURL() string {
	return c.config.BaseURL
}

// SendJSON marshals req.Body as JSON and sends it
func (c *ProviderHTTPClient) SendJSON(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, req, body, contentTypeJSON)
}

// SendForm url-encodes req.FormData and sends it
func (c *ProviderHTTPClient) SendForm(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	form := url.Values{}
	for key, value := range req.FormData {
		form.Set(key, value)
	}
	return c.do(ctx, req, strings.NewReader(form.Encode()), contentTypeForm)
}

// SendRaw sends req.Body verbatim when it is a string or []byte
func (c *ProviderHTTPClient) SendRaw(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	switch raw := req.Body.(type) {
	case string:
		body = strings.NewReader(raw)
	case []byte:
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, req, body, "")
}

func (c *ProviderHTTPClient) do(ctx context.Context, req *HTTPRequest, body io.Reader, contentType string) (resp *HTTPResponse, err error) {
	fullURL := c.buildURL(req.Endpoint, req.QueryParams)
	start := time.Now()

	defer func() {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		logger.Debug("gateway call", logger.LogContext{
			Provider: c.config.Provider,
			Fields: map[string]any{
				"method":      req.Method,
				"endpoint":    req.Endpoint,
				"status_code": status,
				"duration_ms": time.Since(start).Milliseconds(),
			},
		})
		if c.config.Recorder != nil {
			c.config.Recorder(ctx, CallRecord{
				Provider:   c.config.Provider,
				Method:     req.Method,
				Endpoint:   req.Endpoint,
				StatusCode: status,
				Duration:   time.Since(start),
				Err:        err,
			})
		}
	}()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp = &HTTPResponse{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, &HTTPStatusError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	return resp, nil
}

func joinURL(base, endpoint string) string {
	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(endpoint, "/"):
		return base + endpoint[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(endpoint, "/"):
		return base + "/" + endpoint
	default:
		return base + endpoint
	}
}

// buildURL resolves endpoint against the base URL unless it is already absolute
func (c *ProviderHTTPClient) buildURL(endpoint string, queryParams map[string]string) string {
	fullURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		fullURL = joinURL(c.config.BaseURL, endpoint)
	}

	if len(queryParams) == 0 {
		return fullURL
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return fullURL
	}
	q := u.Query()
	for key, value := range queryParams {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseJSONResponse parses the response body as JSON into target
func (c *ProviderHTTPClient) ParseJSONResponse(response *HTTPResponse, target any) error {
	return json.Unmarshal(response.Body, target)
}

// CreateHTTPClientConfig creates a standard HTTP client configuration for providers
func CreateHTTPClientConfig(providerName, baseURL string, timeout time.Duration) *HTTPClientConfig {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClientConfig{
		Provider: providerName,
		BaseURL:  baseURL,
		Timeout:  timeout,
		DefaultHeaders: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "PayGate/1.0",
		},
	}
}
