package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/opensearch"
)

// OpenSearchRecorder indexes each gateway call. Writes run on their own
// goroutine with a 5s deadline. A nil logger yields a nil recorder.
func OpenSearchRecorder(osLogger *opensearch.Logger, tenantID string) CallRecorder {
	if osLogger == nil {
		return nil
	}
	return func(_ context.Context, rec CallRecord) {
		entry := opensearch.GatewayCallLog{
			Timestamp:  time.Now().Add(-rec.Duration),
			TenantID:   tenantID,
			Provider:   rec.Provider,
			Method:     rec.Method,
			Endpoint:   rec.Endpoint,
			StatusCode: rec.StatusCode,
			DurationMs: rec.Duration.Milliseconds(),
		}
		if rec.Err != nil {
			entry.Error = &opensearch.ErrorInfo{
				Code:    errorCode(rec.Err),
				Message: rec.Err.Error(),
			}
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := osLogger.LogGatewayCall(ctx, entry); err != nil {
				logger.Warn("Failed to index gateway call", logger.LogContext{
					Provider: rec.Provider,
					Fields:   map[string]any{"error": err.Error()},
				})
			}
		}()
	}
}

func errorCode(err error) string {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return "HTTP_STATUS"
	}
	return "NETWORK"
}
