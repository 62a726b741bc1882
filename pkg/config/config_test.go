package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 14, cfg.InviteExpiryDays)
	assert.Equal(t, 32, cfg.InviteTokenBytes)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_DRIVER", " Postgres ")
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost:5432/team?sslmode=disable\n")
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "postgres://u:p@localhost:5432/team?sslmode=disable", cfg.PostgresDSN)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.False(t, cfg.Debug, "debug is forced off in production")
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("INVITE_EXPIRY_DAYS", "two weeks")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:      "development",
			Port:             "3000",
			DatabaseDriver:   "sqlite",
			SQLitePath:       "team.db",
			JWTSecret:        "secret",
			InviteExpiryDays: 14,
			InviteTokenBytes: 32,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "missing port", mutate: func(c *Config) { c.Port = "" }, wantErr: "PORT"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.DatabaseDriver = "postgres" }, wantErr: "POSTGRES_DSN"},
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: "unsupported"},
		{name: "sqlite in production", mutate: func(c *Config) { c.Environment = "production" }, wantErr: "sqlite"},
		{name: "default secret in production", mutate: func(c *Config) {
			c.Environment = "production"
			c.DatabaseDriver = "postgres"
			c.PostgresDSN = "postgres://x"
			c.JWTSecret = defaultJWTSecret
		}, wantErr: "JWT_SECRET"},
		{name: "short tokens", mutate: func(c *Config) { c.InviteTokenBytes = 8 }, wantErr: "INVITE_TOKEN_BYTES"},
		{name: "zero expiry", mutate: func(c *Config) { c.InviteExpiryDays = 0 }, wantErr: "INVITE_EXPIRY_DAYS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
