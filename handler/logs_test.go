package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstgnz/paygate/infra/opensearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCallLogReader struct {
	logs     []opensearch.GatewayCallLog
	stats    map[string]any
	err      error
	lastQ    opensearch.CallQuery
	lastArgs string
}

func (m *mockCallLogReader) SearchCalls(ctx context.Context, q opensearch.CallQuery) ([]opensearch.GatewayCallLog, error) {
	m.lastQ = q
	return m.logs, m.err
}

func (m *mockCallLogReader) GetCallStats(ctx context.Context, tenantID, provider string, hours int) (map[string]any, error) {
	m.lastArgs = fmt.Sprintf("%s/%s/%d", tenantID, provider, hours)
	return m.stats, m.err
}

func TestLogsHandler_ListCalls(t *testing.T) {
	reader := &mockCallLogReader{logs: []opensearch.GatewayCallLog{
		{Provider: "paypal", Endpoint: "/v2/checkout/orders", StatusCode: 201},
	}}
	h := NewLogsHandler(reader)

	w := httptest.NewRecorder()
	h.ListCalls(w, newRequest(http.MethodGet, "/v1/logs/paypal?errorsOnly=true&hours=6&size=20&endpoint=/v1/oauth2/token", "", "acme",
		"provider", "paypal"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, opensearch.CallQuery{
		TenantID:   "acme",
		Provider:   "paypal",
		Endpoint:   "/v1/oauth2/token",
		ErrorsOnly: true,
		Hours:      6,
		Size:       20,
	}, reader.lastQ)

	data := decodeBody(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["count"])
	logs := data["logs"].([]any)
	assert.Equal(t, "/v2/checkout/orders", logs[0].(map[string]any)["endpoint"])
}

func TestLogsHandler_ListCallsDefaults(t *testing.T) {
	reader := &mockCallLogReader{}
	h := NewLogsHandler(reader)

	w := httptest.NewRecorder()
	h.ListCalls(w, newRequest(http.MethodGet, "/v1/logs/paypal?hours=-3&size=abc", "", "", "provider", "paypal"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 24, reader.lastQ.Hours)
	assert.Equal(t, 0, reader.lastQ.Size)
	assert.Equal(t, []any{}, decodeBody(t, w)["data"].(map[string]any)["logs"])
}

func TestLogsHandler_Errors(t *testing.T) {
	tests := []struct {
		name           string
		reader         CallLogReader
		expectedStatus int
	}{
		{"no_reader", nil, http.StatusServiceUnavailable},
		{"disabled", &mockCallLogReader{err: opensearch.ErrLoggingDisabled}, http.StatusServiceUnavailable},
		{"search_failed", &mockCallLogReader{err: errors.New("opensearch error: 500")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLogsHandler(tt.reader)

			w := httptest.NewRecorder()
			h.ListCalls(w, newRequest(http.MethodGet, "/v1/logs/paypal", "", "", "provider", "paypal"))
			assert.Equal(t, tt.expectedStatus, w.Code)

			w = httptest.NewRecorder()
			h.GetCallStats(w, newRequest(http.MethodGet, "/v1/logs/paypal/stats", "", "", "provider", "paypal"))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestLogsHandler_GetCallStats(t *testing.T) {
	reader := &mockCallLogReader{stats: map[string]any{"aggregations": map[string]any{"total_requests": map[string]any{"value": 4}}}}
	h := NewLogsHandler(reader)

	w := httptest.NewRecorder()
	h.GetCallStats(w, newRequest(http.MethodGet, "/v1/logs/paypal/stats?hours=48", "", "acme", "provider", "paypal"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme/paypal/48", reader.lastArgs)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 48, data["hours"])
	assert.Contains(t, data["stats"], "aggregations")
}
