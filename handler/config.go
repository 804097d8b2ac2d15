package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
)

// ConfigStore persists tenant gateway configuration
type ConfigStore interface {
	SaveTenantConfig(tenantID, providerName string, config map[string]string) error
	LoadTenantConfig(tenantID, providerName string) (map[string]string, error)
	ListTenantConfigs(providerName string) ([]config.TenantConfigInfo, error)
	DeleteTenantConfig(tenantID, providerName string) error
	GetStats() (map[string]any, error)
}

// TenantInvalidator drops cached tenant gateways after their configuration changes
type TenantInvalidator interface {
	InvalidateTenant(tenantID, name string)
}

// ConfigHandler handles tenant gateway configuration
type ConfigHandler struct {
	store    ConfigStore
	tenants  TenantInvalidator
	registry *provider.ProviderRegistry
}

// NewConfigHandler creates a new config handler. A nil registry uses the default one.
func NewConfigHandler(store ConfigStore, tenants TenantInvalidator, registry *provider.ProviderRegistry) *ConfigHandler {
	if registry == nil {
		registry = provider.DefaultRegistry
	}
	return &ConfigHandler{
		store:    store,
		tenants:  tenants,
		registry: registry,
	}
}

func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := middle.GetTenantIDFromContext(r.Context())
	if tenantID == "" {
		response.Error(w, http.StatusBadRequest, middle.TenantHeader+" header is required", nil)
		return "", false
	}
	return tenantID, true
}

// SaveTenantConfig handles PUT /v1/config/{provider}. The configuration is
// validated by the gateway before it is stored.
func (h *ConfigHandler) SaveTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	providerName := chi.URLParam(r, "provider")

	var cfg map[string]string
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if len(cfg) == 0 {
		response.Error(w, http.StatusBadRequest, "Configuration is empty", nil)
		return
	}

	gateway, err := h.registry.CreateProvider(providerName)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Unknown provider", err)
		return
	}
	if err := gateway.ValidateConfig(cfg); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid configuration", err)
		return
	}

	if err := h.store.SaveTenantConfig(tenantID, providerName, cfg); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to save configuration", err)
		return
	}
	h.tenants.InvalidateTenant(tenantID, providerName)

	logger.Info("Tenant configuration saved", logger.LogContext{
		TenantID: tenantID,
		Provider: providerName,
		Fields:   map[string]any{"keys": len(cfg)},
	})

	response.Success(w, http.StatusOK, "Configuration saved", map[string]any{
		"tenantId": tenantID,
		"provider": providerName,
		"config":   maskConfig(cfg),
	})
}

// GetTenantConfig handles GET /v1/config/{provider}. Secret values are masked.
func (h *ConfigHandler) GetTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	providerName := chi.URLParam(r, "provider")

	cfg, err := h.store.LoadTenantConfig(tenantID, providerName)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrConfigNotFound) {
			status = http.StatusNotFound
		}
		response.Error(w, status, "Configuration not found", err)
		return
	}

	response.Success(w, http.StatusOK, "Configuration retrieved", map[string]any{
		"tenantId": tenantID,
		"provider": providerName,
		"config":   maskConfig(cfg),
	})
}

// DeleteTenantConfig handles DELETE /v1/config/{provider}
func (h *ConfigHandler) DeleteTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	providerName := chi.URLParam(r, "provider")

	if err := h.store.DeleteTenantConfig(tenantID, providerName); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrConfigNotFound) {
			status = http.StatusNotFound
		}
		response.Error(w, status, "Failed to delete configuration", err)
		return
	}
	h.tenants.InvalidateTenant(tenantID, providerName)

	response.Success(w, http.StatusOK, "Configuration deleted", map[string]string{
		"tenantId": tenantID,
		"provider": providerName,
	})
}

// ListTenantConfigs handles GET /v1/config, optionally filtered by ?provider=
func (h *ConfigHandler) ListTenantConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListTenantConfigs(r.URL.Query().Get("provider"))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list configurations", err)
		return
	}
	if configs == nil {
		configs = []config.TenantConfigInfo{}
	}
	response.Success(w, http.StatusOK, "Configurations retrieved", configs)
}

// GetRequiredFields handles GET /v1/config/{provider}/fields
func (h *ConfigHandler) GetRequiredFields(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	gateway, err := h.registry.CreateProvider(providerName)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Unknown provider", err)
		return
	}

	environment := r.URL.Query().Get("environment")
	if environment == "" {
		environment = "sandbox"
	}
	response.Success(w, http.StatusOK, "Configuration fields retrieved", map[string]any{
		"provider":    providerName,
		"environment": environment,
		"fields":      gateway.GetRequiredConfig(environment),
	})
}

// GetStats handles GET /v1/config/stats
func (h *ConfigHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats()
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}

	response.Success(w, http.StatusOK, "Statistics retrieved", stats)
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"secret", "key", "password", "token"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// maskConfig hides secret values, keeping the first and last four characters
// of long ones
func maskConfig(cfg map[string]string) map[string]string {
	out := make(map[string]string, len(cfg))
	for key, value := range cfg {
		switch {
		case !isSecretKey(key):
			out[key] = value
		case len(value) > 8:
			out[key] = value[:4] + "****" + value[len(value)-4:]
		default:
			out[key] = "****"
		}
	}
	return out
}
