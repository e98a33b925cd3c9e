package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// StructuredLogger provides structured logging with service context attached
// to every record. Components receive a child logger via WithComponent so log
// lines stay attributable without threading extra fields through call sites.
type StructuredLogger struct {
	*slog.Logger
	serviceName string
	environment string
	component   string
}

// Config holds configuration for the structured logger
type Config struct {
	Level       LogLevel `yaml:"level" json:"level"`
	Format      string   `yaml:"format" json:"format"` // "json" or "text"
	ServiceName string   `yaml:"service_name" json:"service_name"`
	Environment string   `yaml:"environment" json:"environment"`
}

// NewStructuredLogger creates a new structured logger instance
func NewStructuredLogger(config Config) *StructuredLogger {
	return newStructuredLogger(config, os.Stdout)
}

// NewDiscardLogger returns a logger that drops everything. Intended for tests
// and for components constructed without an injected logger.
func NewDiscardLogger() *StructuredLogger {
	return newStructuredLogger(Config{Level: LevelError}, io.Discard)
}

func newStructuredLogger(config Config, w io.Writer) *StructuredLogger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(config.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if config.ServiceName != "" {
		logger = logger.With("service", config.ServiceName)
	}
	if config.Environment != "" {
		logger = logger.With("environment", config.Environment)
	}

	return &StructuredLogger{
		Logger:      logger,
		serviceName: config.ServiceName,
		environment: config.Environment,
	}
}

// WithComponent creates a logger with a specific component context
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{
		Logger:      sl.Logger.With("component", component),
		serviceName: sl.serviceName,
		environment: sl.environment,
		component:   component,
	}
}

// ErrorErr logs an error message with the error attached as structured fields.
func (sl *StructuredLogger) ErrorErr(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error(), "error_type", fmt.Sprintf("%T", err))
	}
	sl.Logger.Error(msg, args...)
}

// Component returns the component this logger is scoped to.
func (sl *StructuredLogger) Component() string {
	return sl.component
}

func parseLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
