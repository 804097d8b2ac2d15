package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "paygate"

	// DefaultTokenExpiry is used when NewJWTService gets no expiry
	DefaultTokenExpiry = 12 * time.Hour

	minSecretLength = 32
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrMissingTenant = errors.New("tenant ID missing in token")
	ErrMissingSecret = errors.New("JWT secret is not configured")
	ErrWeakSecret    = fmt.Errorf("JWT secret must be at least %d bytes", minSecretLength)
)

// Claims are the JWT claims of a tenant token
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a request. Admin principals hold
// the API key and may act for any tenant.
type Principal struct {
	TenantID string
	Subject  string
	Admin    bool
}

// JWTService issues and validates HS256 tenant tokens
type JWTService struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewJWTService creates a JWT service signing with secret
func NewJWTService(secret string, expiry time.Duration) (*JWTService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &JWTService{
		secretKey: []byte(secret),
		expiry:    expiry,
		now:       time.Now,
	}, nil
}

// GenerateToken signs a token binding subject to tenantID
func (s *JWTService) GenerateToken(tenantID, subject string) (string, time.Time, error) {
	if tenantID == "" {
		return "", time.Time{}, ErrMissingTenant
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateToken verifies the signature, issuer and lifetime of tokenString
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenant
	}
	return claims, nil
}

// RefreshToken issues a new token for the tenant and subject of a valid token
func (s *JWTService) RefreshToken(tokenString string) (string, time.Time, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.GenerateToken(claims.TenantID, claims.Subject)
}
