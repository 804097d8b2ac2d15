package paypal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/paygate/provider"
)

const (
	apiSandboxURL = "https://api-m.sandbox.paypal.com"
	apiLiveURL    = "https://api-m.paypal.com"

	defaultCurrency = "USD"
	defaultTimeout  = 30 * time.Second
)

// VerifyMode selects how webhook signatures are checked
type VerifyMode string

const (
	// VerifyRemote asks the verify-webhook-signature endpoint
	VerifyRemote VerifyMode = "remote"
	// VerifyLocal checks the signature against the signing certificate
	VerifyLocal VerifyMode = "local"
	// VerifyAuto tries local verification and falls back to remote when it is inconclusive
	VerifyAuto VerifyMode = "auto"
)

// Config keys accepted by Initialize and ConfigFromMap
const (
	keyClientID     = "clientId"
	keyClientSecret = "clientSecret"
	keyWebhookID    = "webhookId"
	keyIsSandbox    = "isSandbox"
	keyEnvironment  = "environment"
	keyNotifyURL    = "notifyUrl"
	keyReturnURL    = "returnUrl"
	keyCancelURL    = "cancelUrl"
	keyEncryptKey   = "encryptKey"
	keyVerifyMode   = "verifyMode"
	keyTimeout      = "timeout"
)

// Config is the gateway configuration. A Gateway copies it at construction and
// never mutates it afterwards.
type Config struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	IsSandbox    bool
	NotifyURL    string
	ReturnURL    string
	CancelURL    string
	// EncryptKey is a base64 AES-256 key used to open encrypted resources
	EncryptKey string
	VerifyMode VerifyMode
	Timeout    time.Duration
}

// DefaultConfig returns the values overrides are merged onto
func DefaultConfig() Config {
	return Config{
		IsSandbox:  true,
		VerifyMode: VerifyRemote,
		Timeout:    defaultTimeout,
	}
}

// BaseURL returns the API root selected by IsSandbox
func (c Config) BaseURL() string {
	if c.IsSandbox {
		return apiSandboxURL
	}
	return apiLiveURL
}

// Merge lays every non-zero field of o over c. IsSandbox cannot be told apart
// from its zero value and is kept from c.
func (c Config) Merge(o Config) Config {
	out := c
	setString(&out.ClientID, o.ClientID)
	setString(&out.ClientSecret, o.ClientSecret)
	setString(&out.WebhookID, o.WebhookID)
	setString(&out.NotifyURL, o.NotifyURL)
	setString(&out.ReturnURL, o.ReturnURL)
	setString(&out.CancelURL, o.CancelURL)
	setString(&out.EncryptKey, o.EncryptKey)
	if o.VerifyMode != "" {
		out.VerifyMode = o.VerifyMode
	}
	if o.Timeout > 0 {
		out.Timeout = o.Timeout
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the values that can be checked without a network call.
// Credentials are not required here; operations needing them fail on their own.
func (c Config) Validate() error {
	switch c.VerifyMode {
	case "", VerifyRemote, VerifyLocal, VerifyAuto:
	default:
		return provider.NewError(provider.KindConfig, providerName, "configure",
			fmt.Errorf("unknown verify mode %q", c.VerifyMode))
	}
	if c.EncryptKey != "" {
		if _, err := provider.DecodeKey256(c.EncryptKey); err != nil {
			return provider.NewError(provider.KindConfig, providerName, "configure", err)
		}
	}
	return nil
}

// ConfigFromMap merges a flat key/value map onto DefaultConfig
func ConfigFromMap(m map[string]string) (Config, error) {
	cfg := DefaultConfig().Merge(Config{
		ClientID:     m[keyClientID],
		ClientSecret: m[keyClientSecret],
		WebhookID:    m[keyWebhookID],
		NotifyURL:    m[keyNotifyURL],
		ReturnURL:    m[keyReturnURL],
		CancelURL:    m[keyCancelURL],
		EncryptKey:   m[keyEncryptKey],
		VerifyMode:   VerifyMode(strings.ToLower(m[keyVerifyMode])),
	})

	if v := m[keyIsSandbox]; v != "" {
		sandbox, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, provider.NewError(provider.KindConfig, providerName, "configure",
				fmt.Errorf("isSandbox: %w", err))
		}
		cfg.IsSandbox = sandbox
	} else if env := strings.ToLower(m[keyEnvironment]); env != "" {
		cfg.IsSandbox = env != "production" && env != "live"
	}

	if v := m[keyTimeout]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, provider.NewError(provider.KindConfig, providerName, "configure",
				fmt.Errorf("timeout: %w", err))
		}
		cfg.Timeout = d
	}

	return cfg, cfg.Validate()
}

func (c Config) hasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// requiredConfig describes the keys Initialize accepts
func requiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{Key: keyClientID, Required: true, Type: provider.FieldString, Description: "REST app client id", Example: "AYSq3RDGsmBLJE-otTkBtM-jBRd1TCQwFf9RGfwddNXWz0uFU9ztymylOhRS", MinLength: 10},
		{Key: keyClientSecret, Required: true, Type: provider.FieldString, Description: "REST app client secret", Example: "EGnHDxD_qRPdaLdZz8iCr8N7_MzF-YHPTkjs6NKYQvQSBngp4PTTVWkPZRbL", MinLength: 10},
		{Key: keyWebhookID, Required: false, Type: provider.FieldString, Description: "Webhook id used for signature verification", Example: "8PT597110X687430LKGECATA"},
		{Key: keyIsSandbox, Required: false, Type: provider.FieldBoolean, Description: "Use the sandbox API", Example: "true"},
		{Key: keyEnvironment, Required: false, Type: provider.FieldEnum, Description: "Alternative to isSandbox", Example: "sandbox", Options: []string{"sandbox", "test", "production", "live"}},
		{Key: keyNotifyURL, Required: false, Type: provider.FieldURL, Description: "Webhook listener URL", Example: "https://shop.example.com/webhooks/paypal"},
		{Key: keyReturnURL, Required: false, Type: provider.FieldURL, Description: "Default return URL after approval", Example: "https://shop.example.com/paypal/return"},
		{Key: keyCancelURL, Required: false, Type: provider.FieldURL, Description: "Default URL when the buyer cancels", Example: "https://shop.example.com/paypal/cancel"},
		{Key: keyEncryptKey, Required: false, Type: provider.FieldKey256, Description: "Base64 AES-256 key for encrypted resources", Example: "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="},
		{Key: keyVerifyMode, Required: false, Type: provider.FieldEnum, Description: "Webhook verification mode", Example: "remote", Options: []string{"remote", "local", "auto"}},
		{Key: keyTimeout, Required: false, Type: provider.FieldString, Description: "Per-request timeout as a Go duration", Example: "30s"},
	}
}
