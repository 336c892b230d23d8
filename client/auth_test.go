package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgfetch/internal"
)

func TestTokenRefresher_RequestShape(t *testing.T) {
	var (
		method string
		body   string
		header http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		header = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		_, _ = io.WriteString(w, `{"access_token":"tok-2","refresh_token":"ref-2"}`)
	}))
	defer srv.Close()

	refresher, err := NewTokenRefresher(srv.Client(), srv.URL, quietLogger())
	require.NoError(t, err)

	creds := testCredentials()
	creds.Cookies["a"] = "1"
	store := NewCredentialStore(creds)

	require.NoError(t, refresher.Refresh(context.Background(), store))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "{}", body)
	assert.Equal(t, "a=1; session=abc", header.Get("Cookie"))
	assert.Equal(t, "Bearer tok-1", header.Get("Authorization"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, internal.DefaultAppID, header.Get("X-Talk-App-ID"))

	got := store.Get()
	assert.Equal(t, "tok-2", got.AccessToken)
	assert.Equal(t, "ref-2", got.RefreshToken)
}

func TestTokenRefresher_CookieRotation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "new"})
		http.SetCookie(w, &http.Cookie{Name: "stale", Value: "", MaxAge: -1})
		_, _ = io.WriteString(w, `{"access_token":"tok-2"}`)
	}))
	defer srv.Close()

	refresher, err := NewTokenRefresher(srv.Client(), srv.URL, quietLogger())
	require.NoError(t, err)

	store := NewCredentialStore(internal.Credentials{
		AccessToken: "tok-1",
		Cookies:     map[string]string{"session": "old", "stale": "x", "keep": "y"},
	})
	require.NoError(t, refresher.Refresh(context.Background(), store))

	assert.Equal(t, map[string]string{"session": "new", "keep": "y"}, store.Get().Cookies)
}

func TestTokenRefresher_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rejected_cookies", http.StatusUnauthorized, ``, internal.ErrSessionExpired},
		{"forbidden", http.StatusForbidden, ``, internal.ErrSessionExpired},
		{"empty_token", http.StatusOK, `{"access_token":""}`, internal.ErrSessionExpired},
		{"server_error", http.StatusBadGateway, `oops`, internal.ErrHTTPStatus},
		{"garbage", http.StatusOK, `not json`, internal.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			refresher, err := NewTokenRefresher(srv.Client(), srv.URL, quietLogger())
			require.NoError(t, err)

			store := NewCredentialStore(testCredentials())
			err = refresher.Refresh(context.Background(), store)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, "tok-1", store.AccessToken())
		})
	}
}

func TestTokenRefresher_NoCookies(t *testing.T) {
	var calls atomic.Int32
	refresher, err := NewTokenRefresher(failingDoer(&calls, errConnReset), "https://api.example.com/v2", quietLogger())
	require.NoError(t, err)

	store := NewCredentialStore(internal.Credentials{AccessToken: "tok-1"})
	err = refresher.Refresh(context.Background(), store)
	assert.True(t, errors.Is(err, internal.ErrSessionExpired))
	assert.Zero(t, calls.Load())
}

func TestTokenRefresher_SkipsWhenTokenAlreadyReplaced(t *testing.T) {
	var calls atomic.Int32
	refresher, err := NewTokenRefresher(failingDoer(&calls, errConnReset), "https://api.example.com/v2", quietLogger())
	require.NoError(t, err)

	store := NewCredentialStore(testCredentials())
	require.NoError(t, refresher.RefreshIfStale(context.Background(), store, "tok-0"))
	assert.Zero(t, calls.Load())
}

func TestTokenRefresher_Endpoint(t *testing.T) {
	refresher, err := NewTokenRefresher(http.DefaultClient, "https://api.example.com/v2/", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v2/update_token", refresher.endpoint)
}

func TestLoadNetscapeCookies(t *testing.T) {
	future := strconv.FormatInt(time.Now().Add(24*time.Hour).Unix(), 10)
	past := strconv.FormatInt(time.Now().Add(-24*time.Hour).Unix(), 10)

	content := "# Netscape HTTP Cookie File\n" +
		"\n" +
		".example.com\tTRUE\t/\tTRUE\t" + future + "\tsession\tabc\n" +
		"#HttpOnly_.example.com\tTRUE\t/\tTRUE\t0\ttoken\txyz\n" +
		".example.com\tTRUE\t/\tFALSE\t" + past + "\told\tgone\n"

	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cookies, err := LoadNetscapeCookies(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"session": "abc", "token": "xyz"}, cookies)
}

func TestLoadNetscapeCookies_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(".example.com\tTRUE\t/\n"), 0o600))

	_, err := LoadNetscapeCookies(path)
	require.Error(t, err)

	var vErr *internal.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "cookies", vErr.Field)
	assert.Contains(t, vErr.Message, "line 1")
}

func TestLoadNetscapeCookies_MissingFile(t *testing.T) {
	_, err := LoadNetscapeCookies(filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseNetscapeCookieLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    string
		wantErr bool
	}{
		{"valid", ".example.com\tTRUE\t/\tTRUE\t0\tname\tvalue", "value", false},
		{"too_few_fields", "a\tb\tc", "", true},
		{"bad_expiry", ".example.com\tTRUE\t/\tTRUE\tsoon\tname\tvalue", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie, err := parseNetscapeCookieLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cookie.Value)
			assert.True(t, cookie.Secure)
		})
	}
}
