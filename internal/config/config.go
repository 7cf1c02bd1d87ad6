// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"
	PublicURL string // externally reachable base URL, used in connection strings

	// Database (optional execution journal; sessions stay in memory regardless)
	DatabaseURL string

	// Session policy
	SessionTimeout  time.Duration // default lifetime when a create request sets none
	MaxSessions     int           // cap on concurrently live sessions
	CleanupInterval time.Duration // expired-session sweep period

	// Execution relay
	ExecutorURL string // endpoint that submits signed transactions to the network
	ExecutorKey string // bearer credential for the relay
	NetworkName string // "mainnet", "testnet", "previewnet", "local"

	// Security
	CoordinatorKey string // bearer credential for the admin REST surface
	AllowedOrigins string // comma-separated WebSocket origins; empty allows any

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultNetwork         = "testnet"
	DefaultSessionTimeout  = 15 * time.Minute
	DefaultMaxSessions     = 1000
	DefaultCleanupInterval = 60 * time.Second
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:       getEnv("LOG_FORMAT", DefaultLogFormat),
		PublicURL:       os.Getenv("PUBLIC_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SessionTimeout:  getEnvDuration("SESSION_TIMEOUT", DefaultSessionTimeout),
		MaxSessions:     int(getEnvInt64("MAX_SESSIONS", DefaultMaxSessions)),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", DefaultCleanupInterval),
		ExecutorURL:     os.Getenv("EXECUTOR_URL"),
		ExecutorKey:     os.Getenv("EXECUTOR_KEY"),
		NetworkName:     getEnv("NETWORK", DefaultNetwork),
		CoordinatorKey:  os.Getenv("COORDINATOR_KEY"),
		AllowedOrigins:  os.Getenv("ALLOWED_ORIGINS"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}

	switch c.NetworkName {
	case "mainnet", "testnet", "previewnet", "local":
	default:
		return fmt.Errorf("NETWORK must be one of mainnet, testnet, previewnet, local")
	}

	if c.IsProduction() {
		if c.CoordinatorKey == "" {
			return fmt.Errorf("COORDINATOR_KEY is required in production")
		}
		if c.PublicURL == "" {
			return fmt.Errorf("PUBLIC_URL is required in production")
		}
	}

	return nil
}

// Origins returns the configured WebSocket origins, empty when any origin
// is allowed.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
