package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/opensearch"
	"github.com/mstgnz/paygate/infra/response"
)

// CallLogReader reads recorded gateway calls
type CallLogReader interface {
	SearchCalls(ctx context.Context, q opensearch.CallQuery) ([]opensearch.GatewayCallLog, error)
	GetCallStats(ctx context.Context, tenantID, provider string, hours int) (map[string]any, error)
}

// LogsHandler serves the recorded gateway call log
type LogsHandler struct {
	reader  CallLogReader
	timeout time.Duration
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(reader CallLogReader) *LogsHandler {
	return &LogsHandler{reader: reader, timeout: 30 * time.Second}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func logsStatus(err error) int {
	if errors.Is(err, opensearch.ErrLoggingDisabled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ListCalls handles GET /v1/logs/{provider}. Query parameters: endpoint,
// errorsOnly, hours (default 24) and size.
func (h *LogsHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := opensearch.CallQuery{
		TenantID:   middle.GetTenantIDFromContext(r.Context()),
		Provider:   chi.URLParam(r, "provider"),
		Endpoint:   r.URL.Query().Get("endpoint"),
		ErrorsOnly: r.URL.Query().Get("errorsOnly") == "true",
		Hours:      queryInt(r, "hours", 24),
		Size:       queryInt(r, "size", 0),
	}

	logs, err := h.reader.SearchCalls(ctx, q)
	if err != nil {
		response.Error(w, logsStatus(err), "Failed to retrieve logs", err)
		return
	}
	if logs == nil {
		logs = []opensearch.GatewayCallLog{}
	}

	response.Success(w, http.StatusOK, "Logs retrieved successfully", map[string]any{
		"logs":     logs,
		"count":    len(logs),
		"tenantId": q.TenantID,
		"provider": q.Provider,
		"hours":    q.Hours,
	})
}

// GetCallStats handles GET /v1/logs/{provider}/stats
func (h *LogsHandler) GetCallStats(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tenantID := middle.GetTenantIDFromContext(r.Context())
	provider := chi.URLParam(r, "provider")
	hours := queryInt(r, "hours", 24)

	stats, err := h.reader.GetCallStats(ctx, tenantID, provider, hours)
	if err != nil {
		response.Error(w, logsStatus(err), "Failed to retrieve log statistics", err)
		return
	}

	response.Success(w, http.StatusOK, "Log statistics retrieved successfully", map[string]any{
		"stats":    stats,
		"tenantId": tenantID,
		"provider": provider,
		"hours":    hours,
	})
}
