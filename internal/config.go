package internal

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL   = "https://api.message.hinatazaka46.com/v2"
	DefaultAppID     = "jp.co.sonymusic.communication.keyakizaka 2.5"
	DefaultUserAgent = "Dalvik/2.1.0 (Linux; U; Android 11; Pixel 5 Build/RQ3A.210805.001.A1)"
)

// Config holds application configuration
type Config struct {
	BaseURL     string        `env:"MSGFETCH_BASE_URL"`
	AppID       string        `env:"MSGFETCH_APP_ID"`
	UserAgent   string        `env:"MSGFETCH_USER_AGENT"`
	HTTPTimeout time.Duration `env:"MSGFETCH_TIMEOUT"`
	Proxy       string        `env:"MSGFETCH_PROXY"`

	// Paging and pacing
	PageSize          int     `env:"MSGFETCH_PAGE_SIZE"`
	RequestsPerSecond float64 `env:"MSGFETCH_REQUESTS_PER_SECOND"`

	// Retry policy
	MaxRateLimitAttempts int           `env:"MSGFETCH_MAX_RATE_LIMIT_ATTEMPTS"`
	MaxTransportAttempts int           `env:"MSGFETCH_MAX_TRANSPORT_ATTEMPTS"`
	RetryBaseDelay       time.Duration `env:"MSGFETCH_RETRY_BASE_DELAY"`
	RetryMaxDelay        time.Duration `env:"MSGFETCH_RETRY_MAX_DELAY"`
	RetryMultiplier      float64       `env:"MSGFETCH_RETRY_MULTIPLIER"`
	RetryJitter          float64       `env:"MSGFETCH_RETRY_JITTER"`

	// Sync
	MediaConcurrency int    `env:"MSGFETCH_MEDIA_CONCURRENCY"`
	OutputDir        string `env:"MSGFETCH_OUTPUT_DIR"`
	CredentialsFile  string `env:"MSGFETCH_CREDENTIALS"`
	CookieFile       string `env:"MSGFETCH_COOKIES"`

	// Logging configuration
	LogLevel    string `env:"MSGFETCH_LOG_LEVEL"`
	EnableDebug bool   `env:"MSGFETCH_DEBUG"`
	QuietMode   bool   `env:"MSGFETCH_QUIET"`
	LogFile     string `env:"MSGFETCH_LOG_FILE"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		AppID:       DefaultAppID,
		UserAgent:   DefaultUserAgent,
		HTTPTimeout: 30 * time.Second,

		PageSize:          200,
		RequestsPerSecond: 2,

		MaxRateLimitAttempts: 5,
		MaxTransportAttempts: 3,
		RetryBaseDelay:       time.Second,
		RetryMaxDelay:        30 * time.Second,
		RetryMultiplier:      2,
		RetryJitter:          0.1,

		MediaConcurrency: 5,
		OutputDir:        "output",
		CredentialsFile:  "credentials.json",

		// Logging defaults
		LogLevel: "info",
		LogFile:  "", // Empty means stderr
	}
}

// LoadFromEnv overlays values from a .env file (if present) and the process
// environment. Variables that are unset keep their current value.
func (c *Config) LoadFromEnv() error {
	_ = godotenv.Load()

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewValidationErrorWithValue("base_url", "must be an absolute http(s) URL", c.BaseURL)
	}

	if c.HTTPTimeout <= 0 {
		return NewValidationErrorWithValue("timeout", "must be > 0", c.HTTPTimeout)
	}

	if c.PageSize < 1 {
		return NewValidationErrorWithValue("page_size", "must be >= 1", c.PageSize)
	}

	if c.RequestsPerSecond < 0 {
		return NewValidationErrorWithValue("requests_per_second", "must be >= 0 (0 disables pacing)", c.RequestsPerSecond)
	}

	if c.MaxRateLimitAttempts < 1 {
		return NewValidationErrorWithValue("max_rate_limit_attempts", "must be >= 1", c.MaxRateLimitAttempts)
	}

	if c.MaxTransportAttempts < 1 {
		return NewValidationErrorWithValue("max_transport_attempts", "must be >= 1", c.MaxTransportAttempts)
	}

	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return NewValidationError("retry_delay", fmt.Sprintf("invalid delays: base %s, max %s", c.RetryBaseDelay, c.RetryMaxDelay)).
			WithSuggestion("Base delay must be positive and not larger than the max delay")
	}

	if c.RetryMultiplier < 1 {
		return NewValidationErrorWithValue("retry_multiplier", "must be >= 1", c.RetryMultiplier)
	}

	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		return NewValidationErrorWithValue("retry_jitter", "must be in [0, 1)", c.RetryJitter)
	}

	if c.MediaConcurrency < 1 || c.MediaConcurrency > 32 {
		return NewValidationErrorWithValue("media_concurrency", "must be 1-32", c.MediaConcurrency)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return NewValidationErrorWithValue("log_level", "unknown log level", c.LogLevel).
			WithSuggestion("Use one of: debug, info, warn, error")
	}

	return nil
}
