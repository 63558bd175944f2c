package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log format constants
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config defines the logging configuration for the Configure function.
type Config struct {
	// Level is the default log level ("debug", "info", "warn", "error").
	Level string

	// Format selects the output encoding: "json" or "text". Default is text.
	Format string

	// CommonFields are attributes added to every log record
	// (service name, environment, build version, ...).
	CommonFields map[string]string
}

// logOutput is the writer used by the global logger. Overridable for tests.
var logOutput io.Writer = os.Stderr

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure applies a Config to the global logger.
// This reconfigures the logger with the new settings.
func Configure(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	defaultLevel := slog.LevelInfo
	if cfg.Level != "" {
		defaultLevel = ParseLevel(cfg.Level)
	}

	var commonFields []slog.Attr
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	useJSON := cfg.Format == FormatJSON
	initLoggerWithConfig(defaultLevel, commonFields, useJSON)

	return nil
}

// initLoggerWithConfig creates the logger with full configuration.
func initLoggerWithConfig(level slog.Level, commonFields []slog.Attr, useJSON bool) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var baseHandler slog.Handler
	if useJSON {
		baseHandler = slog.NewJSONHandler(logOutput, opts)
	} else {
		baseHandler = slog.NewTextHandler(logOutput, opts)
	}

	DefaultLogger = slog.New(NewContextHandler(baseHandler, commonFields...))
	slog.SetDefault(DefaultLogger)
}

// SetOutput redirects the global logger output. This is primarily for tests.
func SetOutput(w io.Writer) {
	logOutput = w
}
