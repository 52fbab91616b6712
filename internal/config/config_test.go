package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Versioning.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Execution.Timeout)
	assert.True(t, cfg.Metrics.ZeroAsAbsent)
	assert.Equal(t, "UTC", cfg.Metrics.TimeZone)
	assert.Equal(t, 30*time.Second, cfg.Metrics.CacheTTL)
	assert.Equal(t, 512, cfg.Metrics.LRUSize)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("VERSION_MAX_RETRIES", "8")
	t.Setenv("EXECUTION_TIMEOUT", "5s")
	t.Setenv("METRICS_ZERO_AS_ABSENT", "false")
	t.Setenv("METRICS_TIMEZONE", "Europe/Berlin")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Versioning.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Execution.Timeout)
	assert.False(t, cfg.Metrics.ZeroAsAbsent)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SERVER_PORT", "eighty"},
		{"EXECUTION_TIMEOUT", "soon"},
		{"METRICS_ZERO_AS_ABSENT", "maybe"},
		{"RATE_LIMIT_RPS", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")

	cfg.Database.URL = "postgres://localhost/promptlab"
	cfg.Auth.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())

	cfg.Versioning.MaxRetries = 0
	assert.ErrorContains(t, cfg.Validate(), "VERSION_MAX_RETRIES")

	cfg.Versioning.MaxRetries = 1
	cfg.Metrics.TimeZone = "Mars/Olympus"
	assert.ErrorContains(t, cfg.Validate(), "METRICS_TIMEZONE")
}
