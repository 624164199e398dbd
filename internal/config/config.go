// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Database drivers understood by the store factory.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 15m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"15m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string (required for postgres)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file used by the sqlite driver
	SQLitePath string `env:"SQLITE_PATH" default:"./data/sales.db"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds CSV upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel imports (default: 2)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single import (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// ImportConfig holds settings for interpreting imported data.
type ImportConfig struct {
	// Timezone is the IANA location bill timestamps are read in (default: UTC)
	Timezone string `env:"IMPORT_TIMEZONE" default:"UTC"`

	// DefaultCharset is used when an upload names no charset (default: utf-8)
	DefaultCharset string `env:"IMPORT_DEFAULT_CHARSET" default:"utf-8"`

	// HistoryLimit is how many import records /api/imports returns (default: 50)
	HistoryLimit int `env:"IMPORT_HISTORY_LIMIT" default:"50"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for import and entry endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or color (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled mounts the metrics handler (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is where metrics are served (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Location resolves the configured import timezone.
// Validate guarantees the name loads, so errors fall back to UTC.
func (c *ImportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
