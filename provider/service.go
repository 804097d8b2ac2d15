package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/paygate/infra/logger"
)

// ConfigStore loads per-tenant gateway configuration
type ConfigStore interface {
	LoadTenantConfig(tenantID, providerName string) (map[string]string, error)
}

// CallObserver is implemented by gateways that can report their outbound calls.
// It is invoked before Initialize.
type CallObserver interface {
	ObserveCalls(recorder CallRecorder)
}

// RecorderFactory builds the call recorder for a tenant ("" for the default gateways)
type RecorderFactory func(tenantID string) CallRecorder

// PaymentService resolves gateways by name and tenant and runs operations on them
type PaymentService struct {
	registry        *ProviderRegistry
	store           ConfigStore
	recorders       RecorderFactory
	providers       map[string]PaymentProvider
	tenants         *Cache[PaymentProvider]
	defaultProvider string
	mu              sync.RWMutex
}

// ServiceOption customizes a PaymentService
type ServiceOption func(*PaymentService)

// WithConfigStore enables tenant gateways loaded from store
func WithConfigStore(store ConfigStore) ServiceOption {
	return func(s *PaymentService) { s.store = store }
}

// WithRecorders attaches call recorders to every gateway the service creates
func WithRecorders(factory RecorderFactory) ServiceOption {
	return func(s *PaymentService) { s.recorders = factory }
}

// WithTenantCache overrides the tenant gateway cache
func WithTenantCache(cache *Cache[PaymentProvider]) ServiceOption {
	return func(s *PaymentService) { s.tenants = cache }
}

// NewPaymentService creates a payment service backed by registry
func NewPaymentService(registry *ProviderRegistry, opts ...ServiceOption) *PaymentService {
	if registry == nil {
		registry = DefaultRegistry
	}
	s := &PaymentService{
		registry:  registry,
		providers: make(map[string]PaymentProvider),
		tenants:   NewCache[PaymentProvider](256, 30*time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddProvider creates and initializes the default gateway named name
func (s *PaymentService) AddProvider(name string, config map[string]string) error {
	p, err := s.build("", name, config)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[name] = p
	if s.defaultProvider == "" {
		s.defaultProvider = name
	}
	return nil
}

// SetDefaultProvider selects the gateway used when a request names none
func (s *PaymentService) SetDefaultProvider(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[name]; !ok {
		return fmt.Errorf("provider %s is not configured: %w", name, ErrUnknownProvider)
	}
	s.defaultProvider = name
	return nil
}

// ConfiguredProviders returns the names of the default gateways
func (s *PaymentService) ConfiguredProviders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// GetProvider returns the tenant's gateway when a tenant is given and one is
// stored, otherwise the default gateway
func (s *PaymentService) GetProvider(tenantID, name string) (PaymentProvider, error) {
	s.mu.RLock()
	if name == "" {
		name = s.defaultProvider
	}
	fallback, hasFallback := s.providers[name]
	s.mu.RUnlock()

	if name == "" {
		return nil, fmt.Errorf("no payment provider configured: %w", ErrUnknownProvider)
	}

	if tenantID != "" && s.store != nil {
		key := tenantKey(tenantID, name)
		if p, ok := s.tenants.Get(key); ok {
			return p, nil
		}

		cfg, err := s.store.LoadTenantConfig(tenantID, name)
		if err == nil {
			p, err := s.build(tenantID, name, cfg)
			if err != nil {
				return nil, err
			}
			s.tenants.Set(key, p)
			return p, nil
		}
		if !hasFallback {
			return nil, err
		}
	}

	if !hasFallback {
		return nil, fmt.Errorf("provider %s is not configured: %w", name, ErrUnknownProvider)
	}
	return fallback, nil
}

// InvalidateTenant drops a cached tenant gateway so the next call reloads it
func (s *PaymentService) InvalidateTenant(tenantID, name string) {
	s.tenants.Delete(tenantKey(tenantID, name))
}

func (s *PaymentService) build(tenantID, name string, config map[string]string) (PaymentProvider, error) {
	p, err := s.registry.CreateProvider(name)
	if err != nil {
		return nil, err
	}
	if obs, ok := p.(CallObserver); ok && s.recorders != nil {
		if rec := s.recorders(tenantID); rec != nil {
			obs.ObserveCalls(rec)
		}
	}
	if err := p.Initialize(config); err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", name, err)
	}
	return p, nil
}

func tenantKey(tenantID, name string) string {
	return fmt.Sprintf("%s_%s", strings.ToUpper(tenantID), name)
}

// CreateOrder creates an order and returns the approval URL
func (s *PaymentService) CreateOrder(ctx context.Context, tenantID, name string, request OrderRequest) (string, error) {
	p, err := s.GetProvider(tenantID, name)
	if err != nil {
		return "", err
	}
	start := time.Now()
	url, err := p.CreateOrder(ctx, request)
	s.observe("create_order", tenantID, name, start, err, map[string]any{
		"amount":   request.Amount,
		"currency": request.Currency,
	})
	return url, err
}

// CaptureOrder captures an approved order
func (s *PaymentService) CaptureOrder(ctx context.Context, tenantID, name, orderID string) (*GatewayResponse, error) {
	p, err := s.GetProvider(tenantID, name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := p.CaptureOrder(ctx, orderID)
	s.observe("capture_order", tenantID, name, start, err, map[string]any{"order_id": orderID})
	return resp, err
}

// QueryOrder fetches an order
func (s *PaymentService) QueryOrder(ctx context.Context, tenantID, name, orderID string) (*GatewayResponse, error) {
	p, err := s.GetProvider(tenantID, name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := p.QueryOrder(ctx, orderID)
	s.observe("query_order", tenantID, name, start, err, map[string]any{"order_id": orderID})
	return resp, err
}

// Refund refunds a capture
func (s *PaymentService) Refund(ctx context.Context, tenantID, name, captureID string, request RefundRequest) (*GatewayResponse, error) {
	p, err := s.GetProvider(tenantID, name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := p.Refund(ctx, captureID, request.Amount, request.Currency)
	s.observe("refund", tenantID, name, start, err, map[string]any{
		"capture_id": captureID,
		"amount":     request.Amount,
		"currency":   request.Currency,
	})
	return resp, err
}

// VerifyNotify verifies an inbound notification
func (s *PaymentService) VerifyNotify(ctx context.Context, tenantID, name string, envelope NotificationEnvelope) (bool, error) {
	p, err := s.GetProvider(tenantID, name)
	if err != nil {
		return false, err
	}
	start := time.Now()
	ok, err := p.VerifyNotify(ctx, envelope)
	s.observe("verify_notify", tenantID, name, start, err, map[string]any{"verified": ok})
	return ok, err
}

// DecryptResource decrypts a resource with the gateway's key
func (s *PaymentService) DecryptResource(tenantID, name string, resource EncryptedResource) ([]byte, error) {
	p, err := s.GetProvider(tenantID, name)
	if err != nil {
		return nil, err
	}
	plaintext, err := p.DecryptResource(resource)
	if err != nil {
		logger.Warn("Resource decryption failed", logger.LogContext{
			TenantID: tenantID,
			Provider: name,
			Fields:   map[string]any{"error": err.Error()},
		})
	}
	return plaintext, err
}

// OpenNotification decrypts the encrypted resource embedded in a notification
// body. found is false when the gateway does not seal resources or the body
// carries none.
func (s *PaymentService) OpenNotification(tenantID, name string, body []byte) (plaintext []byte, found bool, err error) {
	p, err := s.GetProvider(tenantID, name)
	if err != nil {
		return nil, false, err
	}
	extractor, ok := p.(ResourceExtractor)
	if !ok {
		return nil, false, nil
	}
	resource, ok := extractor.ExtractResource(body)
	if !ok {
		return nil, false, nil
	}
	plaintext, err = s.DecryptResource(tenantID, name, resource)
	return plaintext, true, err
}

func (s *PaymentService) observe(op, tenantID, name string, start time.Time, err error, fields map[string]any) {
	fields["operation"] = op
	fields["duration_ms"] = time.Since(start).Milliseconds()
	logCtx := logger.LogContext{TenantID: tenantID, Provider: name, Fields: fields}

	if err != nil {
		fields["error_kind"] = KindOf(err).String()
		logger.Error("Gateway operation failed", err, logCtx)
		return
	}
	logger.Info("Gateway operation completed", logCtx)
}
