package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/paygate/infra/opensearch"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

var levelColor = map[LogLevel]string{
	LevelDebug: "\033[36m",
	LevelInfo:  "\033[32m",
	LevelWarn:  "\033[33m",
	LevelError: "\033[31m",
	LevelFatal: "\033[35m",
}

const colorReset = "\033[0m"

// SystemLog is one log entry as indexed in OpenSearch
type SystemLog struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component"`
	Caller      string         `json:"caller"`
	TenantID    string         `json:"tenant_id,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	Service     string         `json:"service"`
	Version     string         `json:"version"`
}

// ParseLevel maps a configured level name to a LogLevel, defaulting to info
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if level == "warning" {
		return LevelWarn
	}
	if _, ok := levelRank[level]; ok {
		return level
	}
	return LevelInfo
}

// SystemLoggerConfig configures a SystemLogger
type SystemLoggerConfig struct {
	MinLevel    LogLevel
	Service     string
	Version     string
	Environment string
	// Output receives the console lines; stdout when nil
	Output io.Writer
}

// SystemLogger writes entries to the console and, when an enabled
// OpenSearch logger is attached, indexes them asynchronously
type SystemLogger struct {
	openSearch  *opensearch.Logger
	output      io.Writer
	mu          sync.Mutex
	minLevel    LogLevel
	service     string
	version     string
	environment string
}

// NewSystemLogger creates a system logger. openSearch may be nil.
func NewSystemLogger(openSearch *opensearch.Logger, config SystemLoggerConfig) *SystemLogger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	if !openSearch.Enabled() {
		openSearch = nil
	}
	return &SystemLogger{
		openSearch:  openSearch,
		output:      output,
		minLevel:    config.MinLevel,
		service:     config.Service,
		version:     config.Version,
		environment: config.Environment,
	}
}

// LogContext holds contextual information for logging
type LogContext struct {
	TenantID  string
	Provider  string
	RequestID string
	Fields    map[string]any
}

// Debug logs a debug message
func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.log(LevelDebug, message, nil, ctx)
}

// Info logs an info message
func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.log(LevelInfo, message, nil, ctx)
}

// Warn logs a warning message
func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.log(LevelWarn, message, nil, ctx)
}

// Error logs an error message
func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	sl.log(LevelError, message, err, ctx)
}

// Fatal logs a fatal message and exits
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.log(LevelFatal, message, err, ctx)
	os.Exit(1)
}

func (sl *SystemLogger) shouldLog(level LogLevel) bool {
	return levelRank[level] >= levelRank[sl.minLevel]
}

func (sl *SystemLogger) log(level LogLevel, message string, err error, ctx []LogContext) {
	if !sl.shouldLog(level) {
		return
	}

	entry := SystemLog{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Component:   "unknown",
		Environment: sl.environment,
		Service:     sl.service,
		Version:     sl.version,
	}

	// log <- level method <- package helper or ContextLogger <- caller
	if _, file, line, ok := runtime.Caller(3); ok {
		entry.Component = componentOf(file)
		entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	if len(ctx) > 0 {
		entry.TenantID = ctx[0].TenantID
		entry.Provider = ctx[0].Provider
		entry.RequestID = ctx[0].RequestID
		entry.Fields = ctx[0].Fields
	}
	if err != nil {
		entry.Error = err.Error()
	}

	sl.writeConsole(entry)
	if sl.openSearch != nil {
		go sl.index(entry)
	}
}

// componentOf turns .../paygate/provider/paypal/order.go into provider/paypal
func componentOf(file string) string {
	parts := strings.Split(filepath.ToSlash(file), "/")
	dirs := parts[:len(parts)-1]

	for i, part := range dirs {
		if part != "paygate" || i+1 >= len(dirs) {
			continue
		}
		rest := dirs[i+1:]
		if len(rest) > 2 {
			rest = rest[:2]
		}
		return strings.Join(rest, "/")
	}

	if len(dirs) > 0 {
		return dirs[len(dirs)-1]
	}
	return "unknown"
}

// writeConsole prints "TIME [LEVEL] [component] [tenant= provider= req_id=] message"
// followed by one indented line per field, sorted by key
func (sl *SystemLogger) writeConsole(entry SystemLog) {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, " [%s%s%s] [%s] ", levelColor[entry.Level], strings.ToUpper(string(entry.Level)), colorReset, entry.Component)

	var tags []string
	if entry.TenantID != "" {
		tags = append(tags, "tenant="+entry.TenantID)
	}
	if entry.Provider != "" {
		tags = append(tags, "provider="+entry.Provider)
	}
	if entry.RequestID != "" {
		reqID := entry.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		tags = append(tags, "req_id="+reqID)
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, "[%s] ", strings.Join(tags, " "))
	}

	b.WriteString(entry.Message)
	if entry.Error != "" {
		b.WriteString(" - Error: " + entry.Error)
	}
	b.WriteByte('\n')

	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", key, entry.Fields[key])
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	_, _ = io.WriteString(sl.output, b.String())
}

func (sl *SystemLogger) index(entry SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.openSearch.LogSystemEvent(ctx, entry); err != nil {
		sl.mu.Lock()
		fmt.Fprintf(sl.output, "failed to ship log to opensearch: %v\n", err)
		sl.mu.Unlock()
	}
}

// WithContext returns a logger that attaches ctx to every entry
func (sl *SystemLogger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{systemLogger: sl, context: ctx}
}

// ContextLogger is a SystemLogger bound to one LogContext
type ContextLogger struct {
	systemLogger *SystemLogger
	context      LogContext
}

// Info logs an info message with context
func (cl *ContextLogger) Info(message string) {
	cl.systemLogger.Info(message, cl.context)
}

// Warn logs a warning message with context
func (cl *ContextLogger) Warn(message string) {
	cl.systemLogger.Warn(message, cl.context)
}

// Error logs an error message with context
func (cl *ContextLogger) Error(message string, err error) {
	cl.systemLogger.Error(message, err, cl.context)
}

// AddField adds a field to the context
func (cl *ContextLogger) AddField(key string, value any) *ContextLogger {
	if cl.context.Fields == nil {
		cl.context.Fields = make(map[string]any)
	}
	cl.context.Fields[key] = value
	return cl
}

// SetRequestID sets the request ID in context
func (cl *ContextLogger) SetRequestID(requestID string) *ContextLogger {
	cl.context.RequestID = requestID
	return cl
}
