package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an injectable lookup, used by the CLI for flag
// overrides and by tests.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from the environment.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := getenv(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = getenv(alt)
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField assigns a string value to a field based on its kind.
func setField(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Int, field.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Database.Driver) {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when DB_DRIVER=postgres")
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite", c.Database.Driver))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}

	if _, err := time.LoadLocation(c.Import.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("IMPORT_TIMEZONE (%q) is not a known location", c.Import.Timezone))
	}
	validCharsets := map[string]bool{
		"utf-8": true, "utf8": true, "utf-16": true, "utf16": true,
		"windows-1252": true, "cp1252": true, "windows-1258": true, "cp1258": true,
		"iso-8859-1": true, "latin1": true,
	}
	if !validCharsets[strings.ToLower(c.Import.DefaultCharset)] {
		errs = append(errs, fmt.Sprintf("IMPORT_DEFAULT_CHARSET (%q) must be one of: utf-8, utf-16, windows-1252, windows-1258, iso-8859-1", c.Import.DefaultCharset))
	}
	if c.Import.HistoryLimit <= 0 {
		errs = append(errs, "IMPORT_HISTORY_LIMIT must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.UploadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true, "color": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json, color", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("METRICS_PATH (%q) must start with /", c.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Driver: %q, URL: [MASKED], SQLitePath: %q, MaxConns: %d}, ",
		c.Database.Driver, c.Database.SQLitePath, c.Database.MaxConns)
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.Timeout)
	fmt.Fprintf(&b, "Import: {Timezone: %q, DefaultCharset: %q}, ", c.Import.Timezone, c.Import.DefaultCharset)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
