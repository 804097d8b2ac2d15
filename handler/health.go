package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/response"
	"golang.org/x/sync/errgroup"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// Pinger is a dependency whose reachability can be checked
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// ProviderLister reports the gateways configured from the environment
type ProviderLister interface {
	ConfiguredProviders() []string
}

// HealthHandler handles health check requests
type HealthHandler struct {
	storage   Pinger
	search    Pinger
	providers ProviderLister
	startTime time.Time
	timeout   time.Duration
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Providers   []string                  `json:"providers"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status       string `json:"status"`
	Healthy      bool   `json:"healthy"`
	Critical     bool   `json:"critical"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler. search may be nil when
// OpenSearch logging is off.
func NewHealthHandler(storage, search Pinger, providers ProviderLister) *HealthHandler {
	return &HealthHandler{
		storage:   storage,
		search:    search,
		providers: providers,
		startTime: time.Now(),
		timeout:   5 * time.Second,
	}
}

// CheckHealth handles GET /health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	providers := h.providers.ConfiguredProviders()
	sort.Strings(providers)

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: config.GetAppConfig().Environment,
		Providers:   providers,
		System:      checkSystemHealth(),
		Services:    h.checkServices(ctx),
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != statusUnhealthy,
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkServices pings every dependency concurrently
func (h *HealthHandler) checkServices(ctx context.Context) map[string]*ServiceHealth {
	services := map[string]*ServiceHealth{
		"opensearch": {Status: statusDisabled, Healthy: true},
	}
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	check := func(name string, p Pinger, critical bool) {
		g.Go(func() error {
			start := time.Now()
			err := p.Ping(ctx)
			sh := &ServiceHealth{
				Status:       statusHealthy,
				Healthy:      true,
				Critical:     critical,
				ResponseTime: time.Since(start).String(),
			}
			if err != nil {
				sh.Status = statusUnhealthy
				sh.Healthy = false
				sh.Error = err.Error()
			}
			mu.Lock()
			services[name] = sh
			mu.Unlock()
			return nil
		})
	}

	if h.storage != nil {
		check("config_storage", h.storage, true)
	}
	if h.search != nil {
		check("opensearch", h.search, false)
	}
	_ = g.Wait()
	return services
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

// determineOverallStatus is unhealthy when a critical service is down,
// degraded when an optional one is down or no gateway is configured
func determineOverallStatus(health *HealthStatus) string {
	status := statusHealthy
	for _, service := range health.Services {
		if service.Healthy {
			continue
		}
		if service.Critical {
			return statusUnhealthy
		}
		status = statusDegraded
	}
	if len(health.Providers) == 0 {
		status = statusDegraded
	}
	return status
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
