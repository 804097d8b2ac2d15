package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/response"
)

// TokenIssuer signs tenant tokens
type TokenIssuer interface {
	GenerateToken(tenantID, subject string) (string, time.Time, error)
}

// AuthHandler issues tenant tokens
type AuthHandler struct {
	tokens   TokenIssuer
	validate *validator.Validate
}

// NewAuthHandler creates an auth handler. A nil issuer makes both endpoints
// answer 503.
func NewAuthHandler(tokens TokenIssuer, validate *validator.Validate) *AuthHandler {
	return &AuthHandler{tokens: tokens, validate: validate}
}

// IssueTokenRequest names the tenant a new token acts for
type IssueTokenRequest struct {
	TenantID string `json:"tenantId" validate:"required,max=64,printascii"`
	Subject  string `json:"subject" validate:"omitempty,max=100"`
}

// TokenResponse is returned by IssueToken and RefreshToken
type TokenResponse struct {
	Token     string    `json:"token"`
	TenantID  string    `json:"tenantId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken handles POST /v1/auth/token. Admin only.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		response.Error(w, http.StatusServiceUnavailable, "Token issuing is not configured", nil)
		return
	}

	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	h.issue(w, r, req.TenantID, req.Subject, http.StatusCreated, "Token issued")
}

// RefreshToken handles POST /v1/auth/refresh. It returns a new token for the
// tenant and subject of the calling token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		response.Error(w, http.StatusServiceUnavailable, "Token issuing is not configured", nil)
		return
	}

	principal, ok := middle.GetPrincipalFromContext(r.Context())
	if !ok || principal.Admin {
		response.Error(w, http.StatusBadRequest, "Only tenant tokens can be refreshed", nil)
		return
	}

	h.issue(w, r, principal.TenantID, principal.Subject, http.StatusOK, "Token refreshed")
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, tenantID, subject string, status int, message string) {
	token, expiresAt, err := h.tokens.GenerateToken(tenantID, subject)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	logger.Info(message, logger.LogContext{
		TenantID:  tenantID,
		RequestID: middle.GetRequestIDFromContext(r.Context()),
		Fields:    map[string]any{"subject": subject, "expires_at": expiresAt},
	})

	response.Success(w, status, message, TokenResponse{
		Token:     token,
		TenantID:  tenantID,
		ExpiresAt: expiresAt,
	})
}
