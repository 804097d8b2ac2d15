package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// ErrLoggingDisabled is returned by read operations while logging is off
var ErrLoggingDisabled = errors.New("logging is disabled")

// GatewayCallLog is one outbound request to a payment gateway
type GatewayCallLog struct {
	Timestamp  time.Time  `json:"timestamp"`
	TenantID   string     `json:"tenant_id,omitempty"`
	Provider   string     `json:"provider"`
	Method     string     `json:"method"`
	Endpoint   string     `json:"endpoint"`
	RequestID  string     `json:"request_id"`
	StatusCode int        `json:"status_code"`
	DurationMs int64      `json:"duration_ms"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// CallQuery filters SearchCalls. Zero values match everything.
type CallQuery struct {
	TenantID   string
	Provider   string
	Endpoint   string
	ErrorsOnly bool
	Hours      int
	Size       int
}

const defaultSearchSize = 100

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// Enabled reports whether documents are written
func (l *Logger) Enabled() bool {
	return l != nil && l.client.IsEnabled()
}

// LogGatewayCall indexes a gateway call into the provider's index
func (l *Logger) LogGatewayCall(ctx context.Context, entry GatewayCallLog) error {
	if !l.Enabled() {
		return nil
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.RequestID == "" {
		entry.RequestID = uuid.New().String()
	}
	if entry.Error != nil {
		sanitized := *entry.Error
		sanitized.Message = SanitizeForLog(sanitized.Message)
		entry.Error = &sanitized
	}

	return l.index(ctx, l.client.GetLogIndexName("", entry.Provider), entry)
}

// LogSystemEvent indexes an application log entry
func (l *Logger) LogSystemEvent(ctx context.Context, event any) error {
	if !l.Enabled() {
		return nil
	}
	return l.index(ctx, systemLogsIndex, event)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}
	return nil
}

// SearchCalls returns the newest gateway calls matching q
func (l *Logger) SearchCalls(ctx context.Context, q CallQuery) ([]GatewayCallLog, error) {
	if !l.Enabled() {
		return nil, ErrLoggingDisabled
	}

	size := q.Size
	if size <= 0 || size > defaultSearchSize {
		size = defaultSearchSize
	}

	searchQuery := map[string]any{
		"query": buildCallQuery(q),
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source GatewayCallLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := l.search(ctx, l.callIndex(q.Provider), searchQuery, &result); err != nil {
		return nil, err
	}

	logs := make([]GatewayCallLog, len(result.Hits.Hits))
	for i, hit := range result.Hits.Hits {
		logs[i] = hit.Source
	}
	return logs, nil
}

// GetCallStats aggregates call counts and latency over the last hours
func (l *Logger) GetCallStats(ctx context.Context, tenantID, provider string, hours int) (map[string]any, error) {
	if !l.Enabled() {
		return nil, ErrLoggingDisabled
	}

	aggQuery := map[string]any{
		"query": buildCallQuery(CallQuery{TenantID: tenantID, Hours: hours}),
		"aggs": map[string]any{
			"total_requests": map[string]any{
				"value_count": map[string]any{"field": "request_id"},
			},
			"success_count": map[string]any{
				"filter": map[string]any{
					"range": map[string]any{
						"status_code": map[string]any{"gte": 200, "lt": 300},
					},
				},
			},
			"error_count": map[string]any{
				"filter": map[string]any{
					"exists": map[string]any{"field": "error.code"},
				},
			},
			"avg_duration_ms": map[string]any{
				"avg": map[string]any{"field": "duration_ms"},
			},
			"status_codes": map[string]any{
				"terms": map[string]any{"field": "status_code", "size": 10},
			},
		},
		"size": 0,
	}

	var result map[string]any
	if err := l.search(ctx, l.callIndex(provider), aggQuery, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Logger) callIndex(provider string) string {
	if provider == "" {
		return l.client.GetLogIndexName("", "*")
	}
	return l.client.GetLogIndexName("", provider)
}

func (l *Logger) search(ctx context.Context, indexName string, query map[string]any, out any) error {
	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	ignoreUnavailable := true
	req := opensearchapi.SearchRequest{
		Index:             []string{indexName},
		Body:              bytes.NewReader(body),
		IgnoreUnavailable: &ignoreUnavailable,
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch search error: %s", res.String())
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode search results: %w", err)
	}
	return nil
}

func buildCallQuery(q CallQuery) map[string]any {
	var filters []map[string]any
	if q.TenantID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"tenant_id": q.TenantID}})
	}
	if q.Endpoint != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"endpoint": q.Endpoint}})
	}
	if q.ErrorsOnly {
		filters = append(filters, map[string]any{"exists": map[string]any{"field": "error.code"}})
	}
	if q.Hours > 0 {
		filters = append(filters, map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", q.Hours)},
			},
		})
	}

	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"filter": filters}}
}

type redaction struct {
	re   *regexp.Regexp
	repl string
}

var redactions = func() []redaction {
	fields := []string{
		"clientSecret", "client_secret", "access_token", "accessToken",
		"encryptKey", "encrypt_key", "password", "token",
	}
	var out []redaction
	for _, field := range fields {
		out = append(out,
			redaction{regexp.MustCompile(fmt.Sprintf(`("%s"\s*:\s*)"[^"]*"`, field)), `${1}"***REDACTED***"`},
			redaction{regexp.MustCompile(fmt.Sprintf(`(\b%s=)[^&\s"]+`, field)), `${1}***REDACTED***`},
		)
	}
	return append(out, redaction{
		regexp.MustCompile(`(?i)\b(basic|bearer) [A-Za-z0-9._~+/=-]+`),
		`${1} ***REDACTED***`,
	})
}()

// SanitizeForLog masks credentials and tokens in data before it is stored
func SanitizeForLog(data string) string {
	for _, r := range redactions {
		data = r.re.ReplaceAllString(data, r.repl)
	}
	return data
}
