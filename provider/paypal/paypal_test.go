package paypal

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/mstgnz/paygate/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.IsSandbox)
	assert.Equal(t, VerifyRemote, cfg.VerifyMode)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "https://api-m.sandbox.paypal.com", cfg.BaseURL())

	cfg.IsSandbox = false
	assert.Equal(t, "https://api-m.paypal.com", cfg.BaseURL())
}

func TestConfigFromMap(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))

	tests := []struct {
		name    string
		input   map[string]string
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name:  "defaults",
			input: map[string]string{"clientId": "A", "clientSecret": "B"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "A", cfg.ClientID)
				assert.True(t, cfg.IsSandbox)
				assert.Equal(t, VerifyRemote, cfg.VerifyMode)
			},
		},
		{
			name:  "isSandbox false selects live",
			input: map[string]string{"isSandbox": "false"},
			check: func(t *testing.T, cfg Config) { assert.False(t, cfg.IsSandbox) },
		},
		{
			name:  "environment production selects live",
			input: map[string]string{"environment": "production"},
			check: func(t *testing.T, cfg Config) { assert.False(t, cfg.IsSandbox) },
		},
		{
			name:  "isSandbox wins over environment",
			input: map[string]string{"isSandbox": "true", "environment": "production"},
			check: func(t *testing.T, cfg Config) { assert.True(t, cfg.IsSandbox) },
		},
		{
			name: "all fields",
			input: map[string]string{
				"clientId": "A", "clientSecret": "B", "webhookId": "WH-1",
				"notifyUrl": "https://n", "returnUrl": "https://r", "cancelUrl": "https://c",
				"encryptKey": key, "verifyMode": "AUTO", "timeout": "5s",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "WH-1", cfg.WebhookID)
				assert.Equal(t, "https://r", cfg.ReturnURL)
				assert.Equal(t, "https://c", cfg.CancelURL)
				assert.Equal(t, "https://n", cfg.NotifyURL)
				assert.Equal(t, key, cfg.EncryptKey)
				assert.Equal(t, VerifyAuto, cfg.VerifyMode)
				assert.Equal(t, 5*time.Second, cfg.Timeout)
			},
		},
		{name: "bad isSandbox", input: map[string]string{"isSandbox": "maybe"}, wantErr: true},
		{name: "bad timeout", input: map[string]string{"timeout": "soon"}, wantErr: true},
		{name: "bad verify mode", input: map[string]string{"verifyMode": "psychic"}, wantErr: true},
		{name: "short key", input: map[string]string{"encryptKey": "c2hvcnQ="}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ConfigFromMap(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, provider.KindConfig, provider.KindOf(err))
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestNew_PinsBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		opts    []Option
		sandbox bool
		baseURL string
	}{
		{"defaults_to_sandbox", Config{ClientID: "A", ClientSecret: "B"}, nil, true, apiSandboxURL},
		{"explicit_sandbox", Config{ClientID: "A", ClientSecret: "B", IsSandbox: true}, nil, true, apiSandboxURL},
		{"live_option", Config{ClientID: "A", ClientSecret: "B"}, []Option{WithLive()}, false, apiLiveURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.cfg, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.baseURL, g.BaseURL())
			assert.Equal(t, tt.sandbox, g.Config().IsSandbox)
			assert.Equal(t, 30*time.Second, g.Config().Timeout)
		})
	}
}

func TestGateway_Initialize(t *testing.T) {
	g := NewProvider().(*Gateway)

	_, err := g.CreateOrder(context.Background(), provider.OrderRequest{Amount: "1.00"})
	assert.Equal(t, provider.KindConfig, provider.KindOf(err), "uninitialized gateway")

	require.NoError(t, g.Initialize(map[string]string{
		"clientId":     "client-id-123",
		"clientSecret": "client-secret-123",
		"environment":  "sandbox",
	}))
	assert.Equal(t, apiSandboxURL, g.BaseURL())
	assert.Equal(t, "client-id-123", g.Config().ClientID)
}

func TestGateway_ValidateConfig(t *testing.T) {
	g := NewProvider()

	tests := []struct {
		name    string
		config  map[string]string
		wantErr bool
	}{
		{"valid", map[string]string{"clientId": "client-id-123", "clientSecret": "client-secret-123"}, false},
		{"missing secret", map[string]string{"clientId": "client-id-123"}, true},
		{"short client id", map[string]string{"clientId": "A", "clientSecret": "client-secret-123"}, true},
		{"bad return url", map[string]string{"clientId": "client-id-123", "clientSecret": "client-secret-123", "returnUrl": "/relative"}, true},
		{"bad verify mode", map[string]string{"clientId": "client-id-123", "clientSecret": "client-secret-123", "verifyMode": "never"}, true},
		{"bad key", map[string]string{"clientId": "client-id-123", "clientSecret": "client-secret-123", "encryptKey": "AAAA"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGateway_Registered(t *testing.T) {
	p, err := provider.CreateProvider("paypal")
	require.NoError(t, err)
	assert.IsType(t, &Gateway{}, p)
	assert.NotEmpty(t, p.GetRequiredConfig("sandbox"))
}

func TestGateway_RecordsCalls(t *testing.T) {
	stub := newStubPayPal(t)
	var records []provider.CallRecord
	g := stub.gateway(t, Config{}, WithCallRecorder(func(ctx context.Context, rec provider.CallRecord) {
		records = append(records, rec)
	}))

	_, err := g.AccessToken(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "paypal", records[0].Provider)
	assert.Equal(t, "POST", records[0].Method)
	assert.Equal(t, endpointToken, records[0].Endpoint)
	assert.Equal(t, 200, records[0].StatusCode)
	assert.NoError(t, records[0].Err)
}

func TestGateway_SharedTokenCache(t *testing.T) {
	stub := newStubPayPal(t)
	cache := NewTokenCache(8)

	a := stub.gateway(t, Config{}, WithTokenCache(cache))
	b := stub.gateway(t, Config{}, WithTokenCache(cache))

	_, err := a.AccessToken(context.Background())
	require.NoError(t, err)
	_, err = b.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), stub.tokenCalls.Load())
	assert.Equal(t, int64(1), cache.Stats().Hits)
}
