package provider

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider records what it was configured with and echoes requests back
type fakeProvider struct {
	config   map[string]string
	recorder CallRecorder
	initErr  error
	opErr    error

	mu    sync.Mutex
	calls []string
}

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) Initialize(config map[string]string) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.config = config
	return nil
}

func (f *fakeProvider) GetRequiredConfig(environment string) []ConfigField {
	return []ConfigField{{Key: "clientId", Required: true, Type: FieldString}}
}

func (f *fakeProvider) ValidateConfig(config map[string]string) error {
	return ValidateConfigFields("fake", config, f.GetRequiredConfig(""))
}

func (f *fakeProvider) ObserveCalls(recorder CallRecorder) {
	f.recorder = recorder
}

func (f *fakeProvider) CreateOrder(ctx context.Context, request OrderRequest) (string, error) {
	f.record("create:" + request.Amount)
	if f.opErr != nil {
		return "", f.opErr
	}
	return "https://approve/" + f.config["clientId"], nil
}

func (f *fakeProvider) CaptureOrder(ctx context.Context, orderID string) (*GatewayResponse, error) {
	f.record("capture:" + orderID)
	return &GatewayResponse{StatusCode: 201, Data: map[string]any{"id": orderID}}, f.opErr
}

func (f *fakeProvider) QueryOrder(ctx context.Context, orderID string) (*GatewayResponse, error) {
	f.record("query:" + orderID)
	return &GatewayResponse{StatusCode: 200, Data: map[string]any{"id": orderID}}, f.opErr
}

func (f *fakeProvider) Refund(ctx context.Context, captureID, amount, currency string) (*GatewayResponse, error) {
	f.record("refund:" + captureID + ":" + amount + ":" + currency)
	return &GatewayResponse{StatusCode: 201}, f.opErr
}

func (f *fakeProvider) VerifyNotify(ctx context.Context, envelope NotificationEnvelope) (bool, error) {
	f.record("verify")
	return envelope.Header("X-Valid") == "yes", f.opErr
}

func (f *fakeProvider) DecryptResource(resource EncryptedResource) ([]byte, error) {
	f.record("decrypt")
	return []byte(resource.Ciphertext), f.opErr
}

// memoryStore is a ConfigStore over a map keyed tenant/provider
type memoryStore struct {
	configs map[string]map[string]string
	loads   int
}

func (m *memoryStore) LoadTenantConfig(tenantID, providerName string) (map[string]string, error) {
	m.loads++
	cfg, ok := m.configs[tenantID+"/"+providerName]
	if !ok {
		return nil, errors.New("configuration not found")
	}
	return cfg, nil
}

func newFakeRegistry() (*ProviderRegistry, *[]*fakeProvider) {
	var built []*fakeProvider
	registry := NewProviderRegistry()
	registry.Register("fake", func() PaymentProvider {
		p := &fakeProvider{}
		built = append(built, p)
		return p
	})
	return registry, &built
}

func TestPaymentService_DefaultProvider(t *testing.T) {
	registry, _ := newFakeRegistry()
	service := NewPaymentService(registry)

	require.NoError(t, service.AddProvider("fake", map[string]string{"clientId": "default"}))
	assert.Equal(t, []string{"fake"}, service.ConfiguredProviders())

	url, err := service.CreateOrder(context.Background(), "", "", OrderRequest{Amount: "10.00"})
	require.NoError(t, err)
	assert.Equal(t, "https://approve/default", url)

	assert.Error(t, service.SetDefaultProvider("missing"))
	assert.NoError(t, service.SetDefaultProvider("fake"))
}

func TestPaymentService_NoProviders(t *testing.T) {
	service := NewPaymentService(NewProviderRegistry())

	_, err := service.GetProvider("", "")
	assert.Error(t, err)

	_, err = service.GetProvider("", "fake")
	assert.Error(t, err)
}

func TestPaymentService_AddProviderInitError(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("broken", func() PaymentProvider {
		return &fakeProvider{initErr: errors.New("bad config")}
	})
	service := NewPaymentService(registry)

	err := service.AddProvider("broken", nil)
	assert.ErrorContains(t, err, "failed to initialize broken")
	assert.Empty(t, service.ConfiguredProviders())
}

func TestPaymentService_TenantProviders(t *testing.T) {
	registry, built := newFakeRegistry()
	store := &memoryStore{configs: map[string]map[string]string{
		"acme/fake": {"clientId": "acme"},
	}}
	service := NewPaymentService(registry, WithConfigStore(store))
	require.NoError(t, service.AddProvider("fake", map[string]string{"clientId": "default"}))

	ctx := context.Background()

	url, err := service.CreateOrder(ctx, "acme", "fake", OrderRequest{Amount: "1.00"})
	require.NoError(t, err)
	assert.Equal(t, "https://approve/acme", url)

	// second call is served from the tenant cache
	_, err = service.CreateOrder(ctx, "acme", "fake", OrderRequest{Amount: "2.00"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)
	assert.Len(t, *built, 2)

	// unknown tenant falls back to the default gateway
	url, err = service.CreateOrder(ctx, "other", "fake", OrderRequest{Amount: "3.00"})
	require.NoError(t, err)
	assert.Equal(t, "https://approve/default", url)

	// invalidation forces a reload
	service.InvalidateTenant("acme", "fake")
	_, err = service.CreateOrder(ctx, "acme", "fake", OrderRequest{Amount: "4.00"})
	require.NoError(t, err)
	assert.Equal(t, 3, store.loads)
}

func TestPaymentService_TenantWithoutFallback(t *testing.T) {
	registry, _ := newFakeRegistry()
	store := &memoryStore{configs: map[string]map[string]string{}}
	service := NewPaymentService(registry, WithConfigStore(store))

	_, err := service.GetProvider("acme", "fake")
	assert.ErrorContains(t, err, "configuration not found")
}

func TestPaymentService_Operations(t *testing.T) {
	registry, built := newFakeRegistry()
	service := NewPaymentService(registry)
	require.NoError(t, service.AddProvider("fake", map[string]string{"clientId": "default"}))
	ctx := context.Background()

	resp, err := service.CaptureOrder(ctx, "", "fake", "O-1")
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	_, err = service.QueryOrder(ctx, "", "fake", "O-1")
	require.NoError(t, err)

	_, err = service.Refund(ctx, "", "fake", "C-1", RefundRequest{Amount: "5.00", Currency: "EUR"})
	require.NoError(t, err)

	ok, err := service.VerifyNotify(ctx, "", "fake", NotificationEnvelope{Headers: map[string]string{"x-valid": "yes"}})
	require.NoError(t, err)
	assert.True(t, ok)

	plain, err := service.DecryptResource("", "fake", EncryptedResource{Ciphertext: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(plain))

	require.Len(t, *built, 1)
	assert.Equal(t, []string{"capture:O-1", "query:O-1", "refund:C-1:5.00:EUR", "verify", "decrypt"}, (*built)[0].calls)
}

func TestPaymentService_OperationErrorsPassThrough(t *testing.T) {
	wantErr := NewError(KindTransport, "fake", "capture order", &HTTPStatusError{StatusCode: 422, Body: "{}"})
	registry := NewProviderRegistry()
	registry.Register("fake", func() PaymentProvider { return &fakeProvider{opErr: wantErr} })
	service := NewPaymentService(registry)
	require.NoError(t, service.AddProvider("fake", nil))

	resp, err := service.CaptureOrder(context.Background(), "", "fake", "O-1")
	assert.Same(t, wantErr, err)
	assert.NotNil(t, resp, "response is kept alongside the error")
}

func TestPaymentService_Recorders(t *testing.T) {
	registry, built := newFakeRegistry()
	var tenants []string
	service := NewPaymentService(registry,
		WithConfigStore(&memoryStore{configs: map[string]map[string]string{"acme/fake": {}}}),
		WithRecorders(func(tenantID string) CallRecorder {
			tenants = append(tenants, tenantID)
			return func(context.Context, CallRecord) {}
		}),
	)

	require.NoError(t, service.AddProvider("fake", nil))
	_, err := service.GetProvider("acme", "fake")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "acme"}, tenants)
	for _, p := range *built {
		assert.NotNil(t, p.recorder)
	}
}

func TestTenantKey(t *testing.T) {
	assert.Equal(t, "ACME_paypal", tenantKey("acme", "paypal"))
}

// sealingProvider is a fakeProvider whose notifications carry {"sealed": "..."}
type sealingProvider struct {
	fakeProvider
}

func (s *sealingProvider) ExtractResource(event []byte) (EncryptedResource, bool) {
	var body struct {
		Sealed string `json:"sealed"`
	}
	if err := json.Unmarshal(event, &body); err != nil || body.Sealed == "" {
		return EncryptedResource{}, false
	}
	return EncryptedResource{Ciphertext: body.Sealed}, true
}

func TestPaymentService_OpenNotification(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("sealing", func() PaymentProvider { return &sealingProvider{} })
	registry.Register("plain", func() PaymentProvider { return &fakeProvider{} })
	service := NewPaymentService(registry)
	require.NoError(t, service.AddProvider("sealing", nil))
	require.NoError(t, service.AddProvider("plain", nil))

	tests := []struct {
		name      string
		provider  string
		body      string
		plaintext string
		found     bool
	}{
		{"sealed_resource", "sealing", `{"sealed":"hello"}`, "hello", true},
		{"no_resource", "sealing", `{"id":"WH-1"}`, "", false},
		{"gateway_without_extractor", "plain", `{"sealed":"hello"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext, found, err := service.OpenNotification("", tt.provider, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.plaintext, string(plaintext))
		})
	}

	_, _, err := service.OpenNotification("", "missing", []byte(`{}`))
	assert.Error(t, err)
}

func TestPaymentService_OpenNotificationDecryptError(t *testing.T) {
	wantErr := NewError(KindCrypto, "sealing", "decrypt resource", ErrDecryptFailed)
	registry := NewProviderRegistry()
	registry.Register("sealing", func() PaymentProvider {
		return &sealingProvider{fakeProvider{opErr: wantErr}}
	})
	service := NewPaymentService(registry)
	require.NoError(t, service.AddProvider("sealing", nil))

	_, found, err := service.OpenNotification("", "sealing", []byte(`{"sealed":"x"}`))
	assert.True(t, found)
	assert.Equal(t, KindCrypto, KindOf(err))
}
