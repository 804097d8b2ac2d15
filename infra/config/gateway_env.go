package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// LoadGatewayEnv reads PREFIX_* environment variables into the camelCase keys
// gateways accept: PAYPAL_CLIENT_ID becomes clientId. Blank values are skipped.
func LoadGatewayEnv(prefix string) (map[string]string, error) {
	envPrefix := strings.ToUpper(strings.TrimSuffix(prefix, "_")) + "_"

	k := koanf.New(".")
	provider := env.Provider(envPrefix, ".", func(s string) string {
		return envKeyToConfigKey(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("load %s environment: %w", envPrefix, err)
	}

	out := make(map[string]string, len(k.Keys()))
	for _, key := range k.Keys() {
		if value := strings.TrimSpace(k.String(key)); value != "" {
			out[key] = value
		}
	}
	return out, nil
}

// LoadPayPalConfig reads the PAYPAL_* variables
func LoadPayPalConfig() (map[string]string, error) {
	return LoadGatewayEnv("PAYPAL")
}

// envKeyToConfigKey turns CLIENT_ID into clientId
func envKeyToConfigKey(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
