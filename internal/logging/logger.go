package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process-wide structured logger: one JSON object per
// line on stderr, tagged with the service name so multi-process deployments
// (API server, signal consumer) stay distinguishable in a shared stream.
func NewLogger(level, service string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFromString(level),
	})
	return slog.New(handler).With("service", service)
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
