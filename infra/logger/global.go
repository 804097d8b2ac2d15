package logger

import (
	"sync"

	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/opensearch"
)

const (
	serviceName    = "paygate"
	serviceVersion = "1.0.0"
)

var (
	globalLogger *SystemLogger
	once         sync.Once
)

// InitGlobalLogger initializes the global system logger. openSearchLogger may be nil.
func InitGlobalLogger(openSearchLogger *opensearch.Logger) {
	once.Do(func() {
		app := config.GetAppConfig()
		globalLogger = NewSystemLogger(openSearchLogger, SystemLoggerConfig{
			MinLevel:    ParseLevel(app.LoggingLevel),
			Service:     serviceName,
			Version:     serviceVersion,
			Environment: app.Environment,
		})
	})
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	if globalLogger == nil {
		// console-only until InitGlobalLogger runs
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			MinLevel:    LevelInfo,
			Service:     serviceName,
			Version:     serviceVersion,
			Environment: "development",
		})
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithTenantAndProvider creates a context logger with tenant and provider
func WithTenantAndProvider(tenantID, provider string) *ContextLogger {
	return WithContext(LogContext{
		TenantID: tenantID,
		Provider: provider,
	})
}
