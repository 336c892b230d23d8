package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"msgfetch/internal"
	"msgfetch/utils"
)

const updateTokenPath = "/update_token"

// maxRefreshBody bounds how much of the update_token response is read
const maxRefreshBody = 1 << 20

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenRefresher exchanges session cookies for a new access token.
// Concurrent refreshes of the same store share one request.
type TokenRefresher struct {
	doer      internal.HTTPDoer
	endpoint  string
	appID     string
	userAgent string
	logger    *internal.SecureLogger
	group     singleflight.Group
}

// NewTokenRefresher creates a refresher posting to {baseURL}/update_token
func NewTokenRefresher(doer internal.HTTPDoer, baseURL string, logger *internal.SecureLogger) (*TokenRefresher, error) {
	endpoint, err := utils.ResolveEndpoint(baseURL, updateTokenPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.GetLogger()
	}

	return &TokenRefresher{
		doer:      doer,
		endpoint:  endpoint.String(),
		appID:     internal.DefaultAppID,
		userAgent: internal.DefaultUserAgent,
		logger:    logger,
	}, nil
}

// SetDefaultHeaders sets the app id and user agent used when the credentials carry none
func (r *TokenRefresher) SetDefaultHeaders(appID, userAgent string) {
	if appID != "" {
		r.appID = appID
	}
	if userAgent != "" {
		r.userAgent = userAgent
	}
}

// Refresh obtains a new access token and stores it. Callers arriving while a
// refresh is in flight wait for that refresh instead of starting another.
func (r *TokenRefresher) Refresh(ctx context.Context, store *CredentialStore) error {
	return r.refreshShared(ctx, store, "")
}

// RefreshIfStale refreshes only if the store still holds staleToken. A caller
// that got a 401 with a token someone else already replaced just retries.
func (r *TokenRefresher) RefreshIfStale(ctx context.Context, store *CredentialStore, staleToken string) error {
	return r.refreshShared(ctx, store, staleToken)
}

func (r *TokenRefresher) refreshShared(ctx context.Context, store *CredentialStore, staleToken string) error {
	key := fmt.Sprintf("%p", store)

	ch := r.group.DoChan(key, func() (any, error) {
		if staleToken != "" && store.AccessToken() != staleToken {
			return nil, nil
		}
		// the shared refresh outlives a single caller giving up
		return nil, r.refresh(context.WithoutCancel(ctx), store)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *TokenRefresher) refresh(ctx context.Context, store *CredentialStore) error {
	creds := store.Get()
	if len(creds.Cookies) == 0 {
		return internal.NewSessionExpiredError("no cookies available for token refresh", 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Talk-App-ID", firstNonEmpty(creds.AppID, r.appID))
	req.Header.Set("User-Agent", firstNonEmpty(creds.UserAgent, r.userAgent))
	req.Header.Set("Cookie", cookieHeader(creds.Cookies))
	if creds.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}

	r.logger.Debug("Refreshing access token")
	r.logger.LogHTTPRequest(req)

	resp, err := r.doer.Do(req)
	if err != nil {
		return internal.NewTransportError(r.endpoint, 1, err)
	}
	defer resp.Body.Close()
	r.logger.LogHTTPResponse(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBody))
	if err != nil {
		return internal.NewTransportError(r.endpoint, 1, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return internal.NewSessionExpiredError("update_token rejected the session cookies", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return internal.NewHTTPError(r.endpoint, resp.StatusCode, body)
	}

	var payload refreshResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return internal.NewProtocolError(r.endpoint, "undecodable update_token response", err)
	}
	if payload.AccessToken == "" {
		return internal.NewSessionExpiredError("update_token returned no access token", resp.StatusCode)
	}

	creds.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		creds.RefreshToken = payload.RefreshToken
	}
	mergeCookies(creds.Cookies, resp.Cookies())
	store.Replace(creds)

	r.logger.Info("Access token refreshed")
	return nil
}

// mergeCookies applies Set-Cookie values from the refresh response
func mergeCookies(dst map[string]string, cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(dst, c.Name)
			continue
		}
		dst[c.Name] = c.Value
	}
}

// cookieHeader renders cookies as a Cookie header value in a stable order
func cookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// LoadNetscapeCookies reads a Netscape-format cookie jar (as exported by
// browser extensions) and returns name/value pairs. Expired cookies are skipped.
func LoadNetscapeCookies(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer file.Close()

	cookies := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	now := time.Now()

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// #HttpOnly_ prefixed lines are real cookies
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cookie, err := parseNetscapeCookieLine(line)
		if err != nil {
			return nil, internal.NewValidationError("cookies", fmt.Sprintf("invalid cookie format at line %d: %v", lineNum, err)).
				WithContext("file", path)
		}
		if !cookie.Expires.IsZero() && cookie.Expires.Before(now) {
			continue
		}

		cookies[cookie.Name] = cookie.Value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading cookie file: %w", err)
	}

	return cookies, nil
}

// parseNetscapeCookieLine parses a single line from Netscape cookie format
// Format: domain	flag	path	secure	expiration	name	value
func parseNetscapeCookieLine(line string) (*http.Cookie, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return nil, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}

	var expires time.Time
	if fields[4] != "0" {
		timestamp, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid expiration timestamp: %w", err)
		}
		expires = time.Unix(timestamp, 0)
	}

	return &http.Cookie{
		Name:    fields[5],
		Value:   fields[6],
		Domain:  fields[0],
		Path:    fields[2],
		Expires: expires,
		Secure:  fields[3] == "TRUE",
	}, nil
}
