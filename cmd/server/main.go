package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/salesboard/internal/config"
	"github.com/JonMunkholm/salesboard/internal/core"
	"github.com/JonMunkholm/salesboard/internal/logging"
	"github.com/JonMunkholm/salesboard/internal/metrics"
	"github.com/JonMunkholm/salesboard/internal/store"
	"github.com/JonMunkholm/salesboard/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// The active-imports gauge reads the limiter lazily, so the recorder can
	// be built before the service that owns the limiter.
	var service *core.Service
	m := metrics.New(func() int { return service.Limiter().ActiveCount() })
	service = core.NewService(st, cfg, core.WithRecorder(m))

	server := web.NewServer(service, cfg, web.WithMetricsHandler(m.Handler()))

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running imports commit or roll back before the store closes.
		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
