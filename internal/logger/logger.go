// Package logger provides structured logging setup for apfabric.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/apfabric/apfabric/internal/config"
)

// Version is the build version stamped on every log record and reported
// by the API root endpoint.
const Version = "0.1.0"

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout; every record carries the service name and
// version so pipeline logs from different deployments stay separable.
func New(cfg config.Logging) *slog.Logger {
	level := parseLevel(cfg.Level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With(
		"service", cfg.Service,
		"version", Version,
	)
}

// WithAgent tags a logger with the pipeline agent emitting the records,
// matching the agent names used in the audit trail.
func WithAgent(log *slog.Logger, agent string) *slog.Logger {
	return log.With("agent", agent)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
