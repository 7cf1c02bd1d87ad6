package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "ENV", "")
	setEnv(t, "PORT", "")
	setEnv(t, "NETWORK", "")
	setEnv(t, "SESSION_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultNetwork, cfg.NetworkName)
	assert.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout)
	assert.Equal(t, DefaultMaxSessions, cfg.MaxSessions)
	assert.Equal(t, DefaultCleanupInterval, cfg.CleanupInterval)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "ENV", "staging")
	setEnv(t, "PORT", "9090")
	setEnv(t, "NETWORK", "mainnet")
	setEnv(t, "SESSION_TIMEOUT", "5m")
	setEnv(t, "MAX_SESSIONS", "25")
	setEnv(t, "EXECUTOR_URL", "https://relay.example.com/v1/execute")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "mainnet", cfg.NetworkName)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 25, cfg.MaxSessions)
	assert.Equal(t, "https://relay.example.com/v1/execute", cfg.ExecutorURL)
}

func TestLoad_BadNetwork(t *testing.T) {
	setEnv(t, "NETWORK", "moonbase")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NETWORK must be one of")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Env:             "development",
		NetworkName:     "testnet",
		SessionTimeout:  time.Minute,
		MaxSessions:     10,
		CleanupInterval: time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero session timeout",
			mutate:  func(c *Config) { c.SessionTimeout = 0 },
			wantErr: "SESSION_TIMEOUT must be positive",
		},
		{
			name:    "zero max sessions",
			mutate:  func(c *Config) { c.MaxSessions = 0 },
			wantErr: "MAX_SESSIONS must be positive",
		},
		{
			name:    "zero cleanup interval",
			mutate:  func(c *Config) { c.CleanupInterval = 0 },
			wantErr: "CLEANUP_INTERVAL must be positive",
		},
		{
			name:    "bad network",
			mutate:  func(c *Config) { c.NetworkName = "devnet9" },
			wantErr: "NETWORK must be one of",
		},
		{
			name: "production requires coordinator key",
			mutate: func(c *Config) {
				c.Env = "production"
				c.PublicURL = "https://sign.example.com"
			},
			wantErr: "COORDINATOR_KEY is required in production",
		},
		{
			name: "production requires public url",
			mutate: func(c *Config) {
				c.Env = "production"
				c.CoordinatorKey = "secret"
			},
			wantErr: "PUBLIC_URL is required in production",
		},
		{
			name: "production fully configured",
			mutate: func(c *Config) {
				c.Env = "production"
				c.CoordinatorKey = "secret"
				c.PublicURL = "https://sign.example.com"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_Origins(t *testing.T) {
	c := Config{}
	assert.Nil(t, c.Origins())

	c.AllowedOrigins = "https://a.example.com, https://b.example.com ,"
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.Origins())
}

func TestConfig_EnvHelpers(t *testing.T) {
	c := Config{Env: "development"}
	assert.True(t, c.IsDevelopment())
	assert.False(t, c.IsProduction())

	c.Env = "production"
	assert.False(t, c.IsDevelopment())
	assert.True(t, c.IsProduction())
}
