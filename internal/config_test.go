package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.ValidateConfig())
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 5, cfg.MaxRateLimitAttempts)
	assert.Equal(t, 3, cfg.MaxTransportAttempts)
	assert.Equal(t, 5, cfg.MediaConcurrency)
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MSGFETCH_BASE_URL", "http://localhost:8080/v2")
	t.Setenv("MSGFETCH_TIMEOUT", "5s")
	t.Setenv("MSGFETCH_REQUESTS_PER_SECOND", "0.5")
	t.Setenv("MSGFETCH_MAX_RATE_LIMIT_ATTEMPTS", "7")
	t.Setenv("MSGFETCH_DEBUG", "true")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "http://localhost:8080/v2", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.InDelta(t, 0.5, cfg.RequestsPerSecond, 1e-9)
	assert.Equal(t, 7, cfg.MaxRateLimitAttempts)
	assert.True(t, cfg.EnableDebug)

	// untouched fields keep their defaults
	assert.Equal(t, DefaultAppID, cfg.AppID)
	assert.Equal(t, 3, cfg.MaxTransportAttempts)
}

func TestConfig_ValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative_base_url", func(c *Config) { c.BaseURL = "/v2" }, "base_url"},
		{"zero_timeout", func(c *Config) { c.HTTPTimeout = 0 }, "timeout"},
		{"zero_page_size", func(c *Config) { c.PageSize = 0 }, "page_size"},
		{"negative_rate", func(c *Config) { c.RequestsPerSecond = -1 }, "requests_per_second"},
		{"no_rate_limit_attempts", func(c *Config) { c.MaxRateLimitAttempts = 0 }, "max_rate_limit_attempts"},
		{"no_transport_attempts", func(c *Config) { c.MaxTransportAttempts = 0 }, "max_transport_attempts"},
		{"max_below_base", func(c *Config) { c.RetryMaxDelay = c.RetryBaseDelay / 2 }, "retry_delay"},
		{"shrinking_multiplier", func(c *Config) { c.RetryMultiplier = 0.5 }, "retry_multiplier"},
		{"jitter_too_large", func(c *Config) { c.RetryJitter = 1 }, "retry_jitter"},
		{"too_many_workers", func(c *Config) { c.MediaConcurrency = 100 }, "media_concurrency"},
		{"bad_log_level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.ValidateConfig()

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
