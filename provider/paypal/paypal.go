package paypal

import (
	"context"
	"errors"
	"net/http"

	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/provider"
)

const providerName = "paypal"

var errNotInitialized = errors.New("gateway is not initialized")

// Gateway is the PayPal integration surface: orders, refunds, webhook
// verification and resource decryption over one immutable configuration.
type Gateway struct {
	cfg       Config
	baseURL   string
	client    *provider.ProviderHTTPClient
	tokens    TokenSource
	orders    *OrderService
	remote    *WebhookVerifier
	local     *LocalVerifier
	decryptor *PayloadDecryptor
	opts      options
}

type options struct {
	baseURL      string
	httpClient   *http.Client
	tokenCache   *TokenCache
	noTokenCache bool
	recorder     provider.CallRecorder
	certHosts    []string
	live         bool
}

// Option customizes a Gateway
type Option func(*options)

// WithBaseURL replaces the sandbox/live API root, for proxies and tests
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithHTTPClient sets the *http.Client used for every call
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithTokenCache shares a token cache between gateways
func WithTokenCache(cache *TokenCache) Option {
	return func(o *options) { o.tokenCache = cache }
}

// WithoutTokenCache fetches a fresh token for every operation
func WithoutTokenCache() Option {
	return func(o *options) { o.noTokenCache = true }
}

// WithCallRecorder reports each outbound call to recorder
func WithCallRecorder(recorder provider.CallRecorder) Option {
	return func(o *options) { o.recorder = recorder }
}

// WithLive makes New use the live API instead of the sandbox
func WithLive() Option {
	return func(o *options) { o.live = true }
}

// WithCertHosts sets the hosts signing certificates may be fetched from
func WithCertHosts(hosts ...string) Option {
	return func(o *options) { o.certHosts = hosts }
}

// NewProvider returns an uninitialized gateway for the provider registry
func NewProvider() provider.PaymentProvider {
	return &Gateway{}
}

// New merges cfg onto DefaultConfig and builds a gateway from the result.
// The gateway talks to the sandbox unless WithLive is given; cfg.IsSandbox
// is ignored because false cannot be told apart from unset.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{}
	for _, opt := range opts {
		opt(&g.opts)
	}
	merged := DefaultConfig().Merge(cfg)
	merged.IsSandbox = !g.opts.live
	if err := g.configure(merged); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	baseURL := cfg.BaseURL()
	if g.opts.baseURL != "" {
		baseURL = g.opts.baseURL
	}

	httpCfg := provider.CreateHTTPClientConfig(providerName, baseURL, cfg.Timeout)
	httpCfg.Client = g.opts.httpClient
	httpCfg.Recorder = g.opts.recorder
	client := provider.NewProviderHTTPClient(httpCfg)

	var tokens TokenSource = NewTokenProvider(cfg, client)
	if !g.opts.noTokenCache {
		cache := g.opts.tokenCache
		if cache == nil {
			cache = NewTokenCache(4)
		}
		tokens = cache.Source(tokenCacheKey(baseURL, cfg), tokens)
	}

	var decryptor *PayloadDecryptor
	if cfg.EncryptKey != "" {
		d, err := NewPayloadDecryptor(cfg.EncryptKey)
		if err != nil {
			return err
		}
		decryptor = d
	}

	g.cfg = cfg
	g.baseURL = baseURL
	g.client = client
	g.tokens = tokens
	g.orders = NewOrderService(cfg, client, tokens)
	g.remote = NewWebhookVerifier(cfg, client, tokens)
	g.local = NewLocalVerifier(cfg, client, g.opts.certHosts...)
	g.decryptor = decryptor
	return nil
}

// Config returns the configuration the gateway was built with
func (g *Gateway) Config() Config {
	return g.cfg
}

// BaseURL returns the API root pinned at construction
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Initialize configures the gateway from a key/value map merged onto DefaultConfig
func (g *Gateway) Initialize(config map[string]string) error {
	cfg, err := ConfigFromMap(config)
	if err != nil {
		return err
	}
	return g.configure(cfg)
}

// GetRequiredConfig returns the configuration fields the gateway accepts
func (g *Gateway) GetRequiredConfig(environment string) []provider.ConfigField {
	return requiredConfig()
}

// ValidateConfig checks config without applying it
func (g *Gateway) ValidateConfig(config map[string]string) error {
	if err := provider.ValidateConfigFields(providerName, config, requiredConfig()); err != nil {
		return err
	}
	_, err := ConfigFromMap(config)
	return err
}

// ObserveCalls must be called before Initialize to take effect
func (g *Gateway) ObserveCalls(recorder provider.CallRecorder) {
	g.opts.recorder = recorder
}

func (g *Gateway) ready(op string) error {
	if g.orders == nil {
		return provider.NewError(provider.KindConfig, providerName, op, errNotInitialized)
	}
	return nil
}

// AccessToken returns a bearer token, from the cache when one is live
func (g *Gateway) AccessToken(ctx context.Context) (string, error) {
	if err := g.ready("get access token"); err != nil {
		return "", err
	}
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// CreateOrder creates an order and returns the buyer approval URL
func (g *Gateway) CreateOrder(ctx context.Context, req provider.OrderRequest) (string, error) {
	if err := g.ready("create order"); err != nil {
		return "", err
	}
	return g.orders.CreateOrder(ctx, req)
}

// CaptureOrder captures an approved order
func (g *Gateway) CaptureOrder(ctx context.Context, orderID string) (*provider.GatewayResponse, error) {
	if err := g.ready("capture order"); err != nil {
		return nil, err
	}
	return g.orders.CaptureOrder(ctx, orderID)
}

// QueryOrder fetches an order
func (g *Gateway) QueryOrder(ctx context.Context, orderID string) (*provider.GatewayResponse, error) {
	if err := g.ready("query order"); err != nil {
		return nil, err
	}
	return g.orders.QueryOrder(ctx, orderID)
}

// Refund refunds amount of a capture; currency defaults to USD
func (g *Gateway) Refund(ctx context.Context, captureID, amount, currency string) (*provider.GatewayResponse, error) {
	if err := g.ready("refund"); err != nil {
		return nil, err
	}
	return g.orders.Refund(ctx, captureID, amount, currency)
}

// VerifyNotify checks a webhook delivery using the configured verify mode
func (g *Gateway) VerifyNotify(ctx context.Context, env provider.NotificationEnvelope) (bool, error) {
	if err := g.ready("verify webhook"); err != nil {
		return false, err
	}

	switch g.cfg.VerifyMode {
	case VerifyLocal:
		return g.local.Verify(ctx, env)
	case VerifyAuto:
		ok, err := g.local.Verify(ctx, env)
		if err == nil || provider.KindOf(err) == provider.KindConfig {
			return ok, err
		}
		logger.Debug("Local webhook verification inconclusive, asking PayPal", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"error": err.Error()},
		})
		return g.remote.Verify(ctx, env)
	default:
		return g.remote.Verify(ctx, env)
	}
}

// DecryptResource opens an encrypted resource with the configured key
func (g *Gateway) DecryptResource(res provider.EncryptedResource) ([]byte, error) {
	if g.decryptor == nil {
		return nil, provider.NewError(provider.KindConfig, providerName, "decrypt resource", provider.ErrMissingEncryptKey)
	}
	return g.decryptor.Decrypt(res)
}

// ExtractResource finds a sealed resource in a webhook event body
func (g *Gateway) ExtractResource(event []byte) (provider.EncryptedResource, bool) {
	return ExtractEncryptedResource(event)
}
