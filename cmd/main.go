package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/auth"
	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/opensearch"
	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
	"github.com/mstgnz/paygate/router"
	v1 "github.com/mstgnz/paygate/router/v1"
)

const paypalProvider = "paypal"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a missing .env is fine, the environment may already be set
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GetAppConfig()

	osClient, osLogger := setupOpenSearch(ctx, cfg)
	logger.InitGlobalLogger(osLogger)

	store, err := config.NewSQLiteStorage(cfg.SQLitePath)
	if err != nil {
		logger.Fatal("Failed to open configuration storage", err, logger.LogContext{
			Fields: map[string]any{"path": cfg.SQLitePath},
		})
	}
	defer store.Close()

	paymentService := provider.NewPaymentService(nil,
		provider.WithConfigStore(store),
		provider.WithRecorders(func(tenantID string) provider.CallRecorder {
			return provider.OpenSearchRecorder(osLogger, tenantID)
		}),
	)
	registerPayPal(paymentService)

	jwtService := setupJWT(cfg)
	if jwtService == nil && cfg.APIKey == "" {
		logger.Warn("Neither API_KEY nor JWT_SECRET is set, every /v1 request will be refused")
	}

	validate := config.App().Validator
	limiter := middle.NewRateLimiter(ctx, config.GetIntEnv("RATE_LIMIT_PER_MINUTE", 100), time.Minute)
	handlers := router.Handlers{
		Handlers: v1.Handlers{
			Auth:    handler.NewAuthHandler(tokenIssuer(jwtService), validate),
			Payment: handler.NewPaymentHandler(paymentService, validate, cfg.RequestTimeout),
			Config:  handler.NewConfigHandler(store, paymentService, nil),
			Logs:    logsHandler(osLogger),
		},
		Health: handler.NewHealthHandler(
			handler.PingerFunc(func(context.Context) error { return store.Ping() }),
			searchPinger(osClient),
			paymentService,
		),
		Authenticate: middle.AuthMiddleware(tokenValidator(jwtService), cfg.APIKey),
		RateLimit:    middle.RateLimitMiddleware(limiter),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middle.RequestContextMiddleware())
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", middle.TenantHeader, middle.RequestIDHeader},
		ExposedHeaders:   []string{middle.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware())

	router.Routes(r, handlers)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{
		"port":        cfg.Port,
		"environment": cfg.Environment,
		"providers":   paymentService.ConfiguredProviders(),
	}})

	<-ctx.Done()
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// setupOpenSearch returns nil values when OpenSearch logging is disabled or
// the cluster is unusable
func setupOpenSearch(ctx context.Context, cfg *config.AppConfig) (*opensearch.Client, *opensearch.Logger) {
	if !cfg.EnableLogging {
		return nil, nil
	}

	client, err := opensearch.NewClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "OpenSearch disabled: %v\n", err)
		return nil, nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.SetupIndices(setupCtx, paypalProvider); err != nil {
		fmt.Fprintf(os.Stderr, "OpenSearch disabled: %v\n", err)
		return nil, nil
	}
	return client, opensearch.NewLogger(client)
}

// registerPayPal configures the default PayPal gateway from PAYPAL_* variables.
// Without them only tenants with a stored configuration can use PayPal.
func registerPayPal(svc *provider.PaymentService) {
	paypalCfg, err := config.LoadPayPalConfig()
	if err != nil {
		logger.Error("Failed to read PayPal environment", err)
		return
	}
	if len(paypalCfg) == 0 {
		logger.Warn("PayPal is not configured from the environment", logger.LogContext{Provider: paypalProvider})
		return
	}
	if err := svc.AddProvider(paypalProvider, paypalCfg); err != nil {
		logger.Error("Failed to register PayPal", err, logger.LogContext{Provider: paypalProvider})
		return
	}
	logger.Info("Registered payment provider", logger.LogContext{Provider: paypalProvider})
}

// setupJWT returns nil when tenant tokens are not configured
func setupJWT(cfg *config.AppConfig) *auth.JWTService {
	if cfg.JWTSecret == "" {
		return nil
	}
	jwtService, err := auth.NewJWTService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		logger.Fatal("Invalid JWT configuration", err)
	}
	return jwtService
}

func tokenValidator(s *auth.JWTService) middle.TokenValidator {
	if s == nil {
		return nil
	}
	return s
}

func tokenIssuer(s *auth.JWTService) handler.TokenIssuer {
	if s == nil {
		return nil
	}
	return s
}

func logsHandler(osLogger *opensearch.Logger) *handler.LogsHandler {
	if osLogger == nil {
		return handler.NewLogsHandler(nil)
	}
	return handler.NewLogsHandler(osLogger)
}

func searchPinger(client *opensearch.Client) handler.Pinger {
	if client == nil {
		return nil
	}
	return client
}
