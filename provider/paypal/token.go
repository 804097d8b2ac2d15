package paypal

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mstgnz/paygate/provider"
	"golang.org/x/sync/singleflight"
)

const (
	endpointToken = "/v1/oauth2/token"

	// tokenExpirySkew is subtracted from expires_in so a cached token is never
	// presented in its final minute
	tokenExpirySkew = 60 * time.Second
)

// AccessToken is a bearer token and when it was issued
type AccessToken struct {
	Value      string
	ObtainedAt time.Time
	ExpiresIn  time.Duration
}

// TokenSource yields a bearer token for API calls
type TokenSource interface {
	Token(ctx context.Context) (AccessToken, error)
}

// TokenProvider performs the client-credentials exchange. Every call is a
// network round trip.
type TokenProvider struct {
	cfg    Config
	client *provider.ProviderHTTPClient
}

// NewTokenProvider creates a token provider for cfg
func NewTokenProvider(cfg Config, client *provider.ProviderHTTPClient) *TokenProvider {
	return &TokenProvider{cfg: cfg, client: client}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token exchanges the client credentials for an access token
func (p *TokenProvider) Token(ctx context.Context) (AccessToken, error) {
	const op = "get access token"

	if !p.cfg.hasCredentials() {
		return AccessToken{}, provider.NewError(provider.KindConfig, providerName, op, provider.ErrMissingCredentials)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(p.cfg.ClientID + ":" + p.cfg.ClientSecret))
	resp, err := p.client.SendForm(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointToken,
		Headers: map[string]string{
			"Authorization": "Basic " + credentials,
		},
		FormData: map[string]string{
			"grant_type": "client_credentials",
		},
	})
	if err != nil {
		return AccessToken{}, provider.NewError(provider.KindTransport, providerName, op, err)
	}

	var body tokenResponse
	if err := p.client.ParseJSONResponse(resp, &body); err != nil {
		return AccessToken{}, provider.NewError(provider.KindProtocol, providerName, op,
			fmt.Errorf("decode token response: %w", err))
	}
	if body.AccessToken == "" {
		return AccessToken{}, provider.NewError(provider.KindProtocol, providerName, op, provider.ErrNoAccessToken)
	}

	return AccessToken{
		Value:      body.AccessToken,
		ObtainedAt: time.Now(),
		ExpiresIn:  time.Duration(body.ExpiresIn) * time.Second,
	}, nil
}

// TokenCache shares access tokens between callers using the same credentials.
// Concurrent misses for one key result in a single upstream exchange.
type TokenCache struct {
	tokens *provider.Cache[AccessToken]
	group  singleflight.Group
}

// NewTokenCache creates a cache for up to maxEntries credential sets
func NewTokenCache(maxEntries int) *TokenCache {
	return &TokenCache{
		tokens: provider.NewCache[AccessToken](maxEntries, 0),
	}
}

// Source returns a TokenSource that serves key from the cache and refills it from upstream
func (c *TokenCache) Source(key string, upstream TokenSource) TokenSource {
	return &cachedSource{key: key, cache: c, upstream: upstream}
}

// Invalidate drops the token stored under key
func (c *TokenCache) Invalidate(key string) {
	c.tokens.Delete(key)
}

// Stats exposes the underlying cache counters
func (c *TokenCache) Stats() provider.CacheStats {
	return c.tokens.Stats()
}

type cachedSource struct {
	key      string
	cache    *TokenCache
	upstream TokenSource
}

// Token waits for the shared exchange only as long as ctx allows. The exchange
// itself is detached from the caller that started it, so one cancelled caller
// does not fail the others.
func (s *cachedSource) Token(ctx context.Context) (AccessToken, error) {
	if tok, ok := s.cache.tokens.Get(s.key); ok {
		return tok, nil
	}

	exchangeCtx := context.WithoutCancel(ctx)
	ch := s.cache.group.DoChan(s.key, func() (any, error) {
		if tok, ok := s.cache.tokens.Get(s.key); ok {
			return tok, nil
		}
		tok, err := s.upstream.Token(exchangeCtx)
		if err != nil {
			return AccessToken{}, err
		}
		s.cache.tokens.SetWithTTL(s.key, tok, tok.ExpiresIn-tokenExpirySkew)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return AccessToken{}, provider.NewError(provider.KindTransport, providerName, "get access token", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		return res.Val.(AccessToken), nil
	}
}

// tokenCacheKey identifies a credential set. The secret is hashed into the key
// so a gateway with a different secret never reuses another's token.
func tokenCacheKey(baseURL string, cfg Config) string {
	sum := sha256.Sum256([]byte(cfg.ClientSecret))
	return baseURL + "|" + cfg.ClientID + "|" + hex.EncodeToString(sum[:8])
}
