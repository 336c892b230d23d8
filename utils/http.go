package utils

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/proxy"

	"msgfetch/internal"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	// MaxRateLimitAttempts is the total number of attempts, the first one included,
	// made for a request that keeps answering 429.
	MaxRateLimitAttempts int
	// MaxTransportAttempts is the total number of attempts for network failures.
	MaxTransportAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	Multiplier           float64
	JitterPercent        float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRateLimitAttempts: 5,
		MaxTransportAttempts: 3,
		BaseDelay:            1 * time.Second,
		MaxDelay:             30 * time.Second,
		Multiplier:           2.0,
		JitterPercent:        0.1,
	}
}

// RetryConfigFromConfig extracts the retry policy from the application config
func RetryConfigFromConfig(cfg *internal.Config) *RetryConfig {
	return &RetryConfig{
		MaxRateLimitAttempts: cfg.MaxRateLimitAttempts,
		MaxTransportAttempts: cfg.MaxTransportAttempts,
		BaseDelay:            cfg.RetryBaseDelay,
		MaxDelay:             cfg.RetryMaxDelay,
		Multiplier:           cfg.RetryMultiplier,
		JitterPercent:        cfg.RetryJitter,
	}
}

// NewBackOff returns a fresh exponential schedule for one call chain.
// It never gives up on its own; attempt caps are enforced by the caller.
func (rc *RetryConfig) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.BaseDelay
	b.MaxInterval = rc.MaxDelay
	b.Multiplier = rc.Multiplier
	b.RandomizationFactor = rc.JitterPercent
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ClampDelay bounds a server-provided wait to the policy's maximum delay
func (rc *RetryConfig) ClampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if rc.MaxDelay > 0 && d > rc.MaxDelay {
		return rc.MaxDelay
	}
	return d
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout  time.Duration
	ProxyURL string
}

// NewHTTPClient builds the shared *http.Client used for API and media requests
func NewHTTPClient(config *HTTPClientConfig) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			return nil, internal.NewValidationErrorWithValue("proxy", err.Error(), config.ProxyURL).
				WithSuggestion("Use http://, https:// or socks5:// proxy URLs")
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}, nil
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// ParseRetryAfter reads a Retry-After header value. Both delta-seconds
// (fractions allowed) and HTTP-date forms are accepted.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

// IsRetryableNetError reports whether a transport failure is worth another attempt.
// Cancellation and certificate failures are permanent.
func IsRetryableNetError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return false
	}
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return false
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") {
		return false
	}

	return true
}

// Sleep waits for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
