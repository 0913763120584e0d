package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents the logging format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey int

const (
	// RunIDKey is the context key for the analysis run ID.
	RunIDKey contextKey = iota
	// LoggerKey is the context key for the run-scoped logger.
	LoggerKey
)

// LoggerConfig holds configuration for the logger.
type LoggerConfig struct {
	Level      LogLevel  `yaml:"level"`
	Format     LogFormat `yaml:"format"`
	OutputPath string    `yaml:"output_path,omitempty"`
}

// ApplyDefaults applies default values to logger config.
func (c *LoggerConfig) ApplyDefaults() {
	if c.Level == "" {
		c.Level = LogLevelInfo
	}

	if c.Format == "" {
		c.Format = LogFormatText
	}
}

// DefaultLogger returns a new default logger writing to stderr. Stdout is
// reserved for findings.
func DefaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// ConfigureLogger configures the logger based on the provided config.
func ConfigureLogger(cfg LoggerConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	switch LogLevel(strings.ToLower(string(cfg.Level))) {
	case LogLevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	switch cfg.Format {
	case LogFormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	var out io.Writer = os.Stderr

	if cfg.OutputPath != "" {
		file, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		out = file
	}

	logger.SetOutput(out)

	return logger, nil
}

// GenerateRunID generates a new analysis run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from context.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}

	return ""
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// LoggerFromContext retrieves a logger from context or returns defaultLogger.
func LoggerFromContext(ctx context.Context, defaultLogger logrus.FieldLogger) logrus.FieldLogger {
	if ctx == nil {
		return defaultLogger
	}

	if logger, ok := ctx.Value(LoggerKey).(logrus.FieldLogger); ok {
		return logger
	}

	return defaultLogger
}

// RunScopedLogger returns base with the run ID of ctx attached, if any.
func RunScopedLogger(base logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if runID := GetRunID(ctx); runID != "" {
		return base.WithField("run_id", runID)
	}

	return base
}

// IsValidLogLevel checks if a log level is valid.
func IsValidLogLevel(level string) bool {
	switch LogLevel(strings.ToLower(level)) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// IsValidLogFormat checks if a log format is valid.
func IsValidLogFormat(format string) bool {
	switch LogFormat(strings.ToLower(format)) {
	case LogFormatText, LogFormatJSON:
		return true
	default:
		return false
	}
}
