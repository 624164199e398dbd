// Package logging provides structured logging configuration using log/slog.
//
// Request IDs set by chi's RequestID middleware are propagated into log
// entries through FromContext, so every line written while handling an
// import can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json", "color" (default: "text")
//
// "color" is meant for a developer terminal; use "json" in production.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w without touching the global default.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	case "color":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
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

// FromContext returns the default logger enriched with the chi request ID,
// when the context carries one.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a request-scoped logger with additional structured fields.
//
//	importLog := logging.WithFields(ctx, "import_id", id, "file", name)
//	importLog.Info("import started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
