// Package store opens the core.Store selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/salesboard/internal/config"
	"github.com/JonMunkholm/salesboard/internal/core"
	"github.com/JonMunkholm/salesboard/internal/store/postgres"
	"github.com/JonMunkholm/salesboard/internal/store/sqlite"
)

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (core.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "driver", config.DriverPostgres)
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened database", "driver", config.DriverSQLite, "path", cfg.SQLitePath)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
