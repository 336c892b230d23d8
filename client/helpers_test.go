package client

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"msgfetch/internal"
	"msgfetch/utils"
)

func quietLogger() *internal.SecureLogger {
	return internal.NewSecureLogger(io.Discard, internal.LogLevelError, false, true)
}

func fastRetry() *utils.RetryConfig {
	return &utils.RetryConfig{
		MaxRateLimitAttempts: 5,
		MaxTransportAttempts: 3,
		BaseDelay:            time.Millisecond,
		MaxDelay:             20 * time.Millisecond,
		Multiplier:           2,
		JitterPercent:        0,
	}
}

func testCredentials() internal.Credentials {
	return internal.Credentials{
		AccessToken: "tok-1",
		Cookies:     map[string]string{"session": "abc"},
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, creds internal.Credentials, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithLogger(quietLogger()),
		WithRetryConfig(fastRetry()),
	}, opts...)

	c, err := New(srv.Client(), creds, opts...)
	require.NoError(t, err)
	return c
}

func newTestExecutor(t *testing.T, doer internal.HTTPDoer, baseURL string, creds internal.Credentials) (*Executor, *CredentialStore) {
	t.Helper()

	logger := quietLogger()
	store := NewCredentialStore(creds)
	refresher, err := NewTokenRefresher(doer, baseURL, logger)
	require.NoError(t, err)

	return NewExecutor(doer, baseURL, store, refresher, fastRetry(), nil, logger), store
}

// doerFunc adapts a function to internal.HTTPDoer
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// failingDoer counts calls and fails every one with err
func failingDoer(calls *atomic.Int32, err error) internal.HTTPDoer {
	return doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, err
	})
}

var errConnReset = errors.New("connection reset by peer")

// refreshHandler answers /update_token with next and rotates the session cookie
func refreshHandler(refreshes *atomic.Int32, next string, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "rotated"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"`+next+`"}`)
	}
}
