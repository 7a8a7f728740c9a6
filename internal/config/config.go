// Package config reads process settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultSecretKey   = "fallback_default_key"
	DefaultDatabaseURL = "sqlite:///tasks.db"
	MemoryDatabaseURL  = "memory://"
)

type Config struct {
	Addr           string
	SecretKey      string
	DatabaseURL    string
	LogLevel       string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	CSRFEnabled    bool
	SecureCookies  bool
	RequestTimeout time.Duration
	TraceExporter  string
}

// Load reads .env (if present) and then the environment. Variables already
// set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Addr:          get("ADDR", ":8080"),
		SecretKey:     get("SECRET_KEY", DefaultSecretKey),
		DatabaseURL:   get("DATABASE_URL", DefaultDatabaseURL),
		LogLevel:      strings.ToLower(get("LOG_LEVEL", "info")),
		TraceExporter: strings.ToLower(get("TRACE_EXPORTER", "none")),
	}

	var err error
	if cfg.RateLimitRPS, err = strconv.ParseFloat(get("RATE_LIMIT_RPS", "0"), 64); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(get("RATE_LIMIT_BURST", "10")); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
	}
	if cfg.CSRFEnabled, err = strconv.ParseBool(get("CSRF_ENABLED", "true")); err != nil {
		return Config{}, fmt.Errorf("CSRF_ENABLED: %w", err)
	}
	if cfg.SecureCookies, err = strconv.ParseBool(get("SECURE_COOKIES", "false")); err != nil {
		return Config{}, fmt.Errorf("SECURE_COOKIES: %w", err)
	}
	if cfg.RequestTimeout, err = time.ParseDuration(get("REQUEST_TIMEOUT", "15s")); err != nil {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}

	for _, o := range strings.Split(get("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	switch cfg.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return Config{}, fmt.Errorf("TRACE_EXPORTER: unknown exporter %q", cfg.TraceExporter)
	}
	return cfg, nil
}

// UsesMemoryStore reports whether DatabaseURL selects the in-memory store.
func (c Config) UsesMemoryStore() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}

// usesSQLiteMemory reports whether DatabaseURL names a private in-memory
// SQLite database, in either SQLAlchemy or driver spelling.
func (c Config) usesSQLiteMemory() bool {
	switch c.DatabaseURL {
	case "sqlite://", "sqlite:///:memory:", ":memory:":
		return true
	}
	return false
}

// SQLiteDSN returns the driver DSN to open when SQLitePath reports no file.
func (c Config) SQLiteDSN() string {
	if c.usesSQLiteMemory() {
		return ":memory:"
	}
	return c.DatabaseURL
}

// SQLitePath returns the database file for sqlite:/// URLs and bare paths,
// or ok=false when DatabaseURL is in-memory or already a driver DSN such as
// file:...
func (c Config) SQLitePath() (path string, ok bool) {
	u := c.DatabaseURL
	switch {
	case c.usesSQLiteMemory():
		return "", false
	case strings.HasPrefix(u, "sqlite:///"):
		return strings.TrimPrefix(u, "sqlite:///"), true
	case strings.HasPrefix(u, "file:"):
		return "", false
	}
	return u, true
}
