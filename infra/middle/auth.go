package middle

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/mstgnz/paygate/infra/auth"
	"github.com/mstgnz/paygate/infra/response"
)

// TokenValidator validates tenant bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthMiddleware authenticates "Authorization: Bearer <credential>". The
// credential is either the admin API key or a tenant token. A tenant token
// fixes the request tenant; the admin key acts for the tenant named in
// X-Tenant-ID, or for none.
func AuthMiddleware(tokens TokenValidator, adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil && adminKey == "" {
				response.Error(w, http.StatusInternalServerError, "Authentication is not configured", nil)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header required")
				return
			}

			credential, ok := strings.CutPrefix(authHeader, "Bearer ")
			credential = strings.TrimSpace(credential)
			if !ok || credential == "" {
				unauthorized(w, "Invalid authorization format. Use: Bearer <token>")
				return
			}

			requested := strings.TrimSpace(r.Header.Get(TenantHeader))

			var principal auth.Principal
			switch {
			case adminKey != "" && subtle.ConstantTimeCompare([]byte(credential), []byte(adminKey)) == 1:
				principal = auth.Principal{TenantID: requested, Subject: "admin", Admin: true}
			case tokens != nil:
				claims, err := tokens.ValidateToken(credential)
				if err != nil {
					if errors.Is(err, auth.ErrExpiredToken) {
						unauthorized(w, "Token has expired")
						return
					}
					unauthorized(w, "Invalid token")
					return
				}
				if requested != "" && requested != claims.TenantID {
					response.Error(w, http.StatusForbidden, "Token is not valid for the requested tenant", nil)
					return
				}
				principal = auth.Principal{TenantID: claims.TenantID, Subject: claims.Subject}
			default:
				unauthorized(w, "Invalid API key")
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = WithTenantID(ctx, principal.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin only lets callers holding the admin API key through.
// It must run after AuthMiddleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipalFromContext(r.Context())
			if !ok || !principal.Admin {
				response.Error(w, http.StatusForbidden, "Admin credentials required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="paygate"`)
	response.Error(w, http.StatusUnauthorized, message, nil)
}
