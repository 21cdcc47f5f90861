// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ingest    IngestConfig
	Normalize NormalizeConfig
	Account   AccountConfig
	Logging   LoggingConfig
}

// ServerConfig holds settings for the read-only HTTP surface.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// RateLimit is the number of requests allowed per client per RateWindow (default: 100)
	RateLimit  int           `env:"SERVER_RATE_LIMIT" default:"100"`
	RateWindow time.Duration `env:"SERVER_RATE_WINDOW" default:"1m"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// LockTimeout bounds how long a conversion write or snapshot waits for
	// the table locks (default: 30s)
	LockTimeout time.Duration `env:"DB_LOCK_TIMEOUT" default:"30s"`
}

// IngestConfig holds file ingestion settings.
type IngestConfig struct {
	// Dialect is used when the command line names none; empty sniffs (default: "")
	Dialect string `env:"INGEST_DIALECT"`

	// Actor is stamped on records when the command does not name a user (default: system)
	Actor string `env:"INGEST_ACTOR" default:"system"`

	// ContextCheckInterval is how often, in rows, a run checks for cancellation (default: 100)
	ContextCheckInterval int `env:"INGEST_CONTEXT_CHECK_INTERVAL" default:"100"`

	// ProgressInterval is how often, in rows, a run logs progress (default: 1000)
	ProgressInterval int `env:"INGEST_PROGRESS_INTERVAL" default:"1000"`

	// Timeout is the maximum duration of a single run (default: 30m)
	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"30m"`
}

// NormalizeConfig holds the canonical basis and normalization pass settings.
type NormalizeConfig struct {
	// Currency is the canonical currency (default: USD)
	Currency string `env:"NORMALIZE_CURRENCY" default:"USD"`

	// Units is the ordered, comma-separated list of canonical units
	Units []string `env:"NORMALIZE_UNITS" default:"kg,l,km,kWh,m2,unit"`

	// Workers is the normalization pass concurrency (default: 4)
	Workers int `env:"NORMALIZE_WORKERS" default:"4"`

	// Timeout is the maximum duration of a pass (default: 10m)
	Timeout time.Duration `env:"NORMALIZE_TIMEOUT" default:"10m"`
}

// AccountConfig holds user account settings.
type AccountConfig struct {
	// BcryptCost is the password hashing cost (default: 12)
	BcryptCost int `env:"ACCOUNT_BCRYPT_COST" default:"12"`

	// MinPasswordLength is the shortest accepted password (default: 8)
	MinPasswordLength int `env:"ACCOUNT_MIN_PASSWORD_LENGTH" default:"8"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
