package middle

import (
	"context"
	"strings"

	"github.com/mstgnz/paygate/infra/auth"
)

const (
	// TenantHeader names the tenant an admin request acts for. Tenant tokens
	// carry their tenant and may only repeat it here.
	TenantHeader = "X-Tenant-ID"
	// RequestIDHeader carries the request correlation id
	RequestIDHeader = "X-Request-ID"
)

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	requestIDKey contextKey = "request_id"
	principalKey contextKey = "principal"
	scopeKey     contextKey = "scope"
)

// requestScope is shared by every middleware of a request, so the tenant
// resolved by authentication also reaches the outer logging middleware
type requestScope struct {
	tenantID string
}

func withScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey, &requestScope{})
}

// WithTenantID stores the tenant id in ctx
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	tenantID = strings.TrimSpace(tenantID)
	if scope, ok := ctx.Value(scopeKey).(*requestScope); ok {
		scope.tenantID = tenantID
	}
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantIDFromContext returns the authenticated tenant id or ""
func GetTenantIDFromContext(ctx context.Context) string {
	if tenantID, ok := ctx.Value(tenantIDKey).(string); ok {
		return tenantID
	}
	if scope, ok := ctx.Value(scopeKey).(*requestScope); ok {
		return scope.tenantID
	}
	return ""
}

// WithPrincipal stores the authenticated caller in ctx
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipalFromContext returns the authenticated caller, if any
func GetPrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

// WithRequestID stores the request id in ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestIDFromContext returns the request id or ""
func GetRequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}
