package middle

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paygate/infra/logger"
)

// statusWriter records the status code written by the next handler
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(statusCode int) {
	if !sw.written {
		sw.statusCode = statusCode
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(statusCode)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.statusCode = http.StatusOK
		sw.written = true
	}
	return sw.ResponseWriter.Write(b)
}

// RequestContextMiddleware attaches the request id to the request context and
// echoes it back to the caller. The tenant is filled in by AuthMiddleware.
func RequestContextMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := WithRequestID(r.Context(), requestID)
			ctx = withScope(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLoggingMiddleware logs one line per request once the handler returns.
// It expects RequestContextMiddleware to run first.
func RequestLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sw, r)

			logCtx := logger.LogContext{
				TenantID:  GetTenantIDFromContext(r.Context()),
				Provider:  providerFromPath(r.URL.Path),
				RequestID: GetRequestIDFromContext(r.Context()),
				Fields: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      sw.statusCode,
					"duration_ms": time.Since(start).Milliseconds(),
					"client_ip":   GetClientIP(r),
				},
			}
			if sw.statusCode >= http.StatusInternalServerError {
				logger.Warn("HTTP request failed", logCtx)
				return
			}
			logger.Info("HTTP request", logCtx)
		})
	}
}

// providerFromPath picks the gateway name out of /v1/{provider}/... and
// /webhooks/{provider} paths
func providerFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return ""
	}
	switch segments[0] {
	case "v1":
		if segments[1] == "auth" || segments[1] == "config" || segments[1] == "logs" {
			return ""
		}
		return segments[1]
	case "webhooks":
		return segments[1]
	}
	return ""
}
