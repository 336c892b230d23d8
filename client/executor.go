package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"msgfetch/internal"
	"msgfetch/utils"
)

// maxResponseBody bounds buffered API responses
const maxResponseBody = 64 << 20

// RequestSpec describes one API call. Executors never modify it.
type RequestSpec struct {
	Method string
	// Path is an endpoint relative to the base URL, or an absolute URL.
	Path   string
	Query  url.Values
	Header http.Header
	// Body is encoded as JSON when non-nil.
	Body any
	// Anonymous requests carry no bearer token and are never refreshed.
	Anonymous bool
}

// Response is a fully read 2xx response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestExecutor is what the paginator drives
type RequestExecutor interface {
	Execute(ctx context.Context, spec RequestSpec) (*Response, error)
}

// Executor sends authenticated requests and recovers from expired tokens,
// rate limiting and transient network failures.
type Executor struct {
	doer      internal.HTTPDoer
	baseURL   string
	store     *CredentialStore
	refresher *TokenRefresher
	retry     *utils.RetryConfig
	limiter   internal.RateLimiter
	logger    *internal.SecureLogger
	appID     string
	userAgent string
	now       func() time.Time
}

// NewExecutor wires an executor. retry and limiter may be nil.
func NewExecutor(doer internal.HTTPDoer, baseURL string, store *CredentialStore, refresher *TokenRefresher,
	retry *utils.RetryConfig, limiter internal.RateLimiter, logger *internal.SecureLogger) *Executor {
	if retry == nil {
		retry = utils.DefaultRetryConfig()
	}
	if logger == nil {
		logger = internal.GetLogger()
	}

	return &Executor{
		doer:      doer,
		baseURL:   baseURL,
		store:     store,
		refresher: refresher,
		retry:     retry,
		limiter:   limiter,
		logger:    logger,
		appID:     internal.DefaultAppID,
		userAgent: internal.DefaultUserAgent,
		now:       time.Now,
	}
}

// SetDefaultHeaders sets the app id and user agent used when the credentials carry none
func (e *Executor) SetDefaultHeaders(appID, userAgent string) {
	if appID != "" {
		e.appID = appID
	}
	if userAgent != "" {
		e.userAgent = userAgent
	}
}

// Execute performs the request and returns the buffered body of a 2xx response
func (e *Executor) Execute(ctx context.Context, spec RequestSpec) (*Response, error) {
	resp, err := e.Do(ctx, spec)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, internal.NewTransportError(spec.Path, 1, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Do performs the request and returns the open 2xx response. The caller closes the body.
//
// 401 triggers at most one token refresh per call, 429 and transport failures
// are retried with backoff up to the configured attempt caps, and any other
// non-2xx status is returned as an HTTP error without retry.
func (e *Executor) Do(ctx context.Context, spec RequestSpec) (*http.Response, error) {
	target, err := e.resolve(spec)
	if err != nil {
		return nil, internal.NewValidationErrorWithValue("path", err.Error(), spec.Path)
	}
	display := target.Redacted()

	var body []byte
	if spec.Body != nil {
		if body, err = json.Marshal(spec.Body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	log := e.logger.With(zap.String("request_id", uuid.NewString()))
	log.Debug("%s %s", methodOf(spec), display)

	var (
		refreshed         bool
		rateAttempts      int
		transportAttempts int
		bo                = e.retry.NewBackOff()
	)

	if !spec.Anonymous && e.refresher != nil && e.tokenExpired() {
		log.Debug("Access token expired, refreshing before request")
		if err := e.refresher.Refresh(ctx, e.store); err != nil {
			return nil, err
		}
		refreshed = true
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, usedToken, err := e.newRequest(ctx, spec, target, body)
		if err != nil {
			return nil, err
		}
		log.LogHTTPRequest(req)

		resp, err := e.doer.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			transportAttempts++
			if !utils.IsRetryableNetError(err) || transportAttempts >= e.retry.MaxTransportAttempts {
				return nil, internal.NewTransportError(display, transportAttempts, err)
			}
			wait := bo.NextBackOff()
			log.Warn("Request to %s failed (attempt %d/%d), retrying in %s: %v",
				display, transportAttempts, e.retry.MaxTransportAttempts, wait, err)
			if err := utils.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		log.LogHTTPResponse(resp)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized:
			drainAndClose(resp)
			if spec.Anonymous || refreshed || e.refresher == nil {
				return nil, internal.NewUnauthorizedError(display)
			}
			log.Debug("Got 401, refreshing access token")
			if err := e.refresher.RefreshIfStale(ctx, e.store, usedToken); err != nil {
				return nil, err
			}
			refreshed = true

		case resp.StatusCode == http.StatusTooManyRequests:
			rateAttempts++
			wait, ok := utils.ParseRetryAfter(resp.Header.Get("Retry-After"), e.now())
			if !ok {
				wait = bo.NextBackOff()
			}
			wait = e.retry.ClampDelay(wait)
			drainAndClose(resp)

			if rateAttempts >= e.retry.MaxRateLimitAttempts {
				return nil, internal.NewRateLimitError(display, rateAttempts, wait)
			}
			log.Warn("Rate limited on %s (attempt %d/%d), waiting %s",
				display, rateAttempts, e.retry.MaxRateLimitAttempts, wait)
			if err := utils.Sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, internal.NewHTTPError(display, resp.StatusCode, errBody)
		}
	}
}

// tokenExpired reports whether the current access token is a JWT whose exp has passed
func (e *Executor) tokenExpired() bool {
	exp, ok := e.store.Get().ExpiresAt()
	return ok && !e.now().Before(exp)
}

func (e *Executor) resolve(spec RequestSpec) (*url.URL, error) {
	target, err := utils.ResolveEndpoint(e.baseURL, spec.Path)
	if err != nil {
		return nil, err
	}
	if len(spec.Query) > 0 {
		q := target.Query()
		for key, values := range spec.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		target.RawQuery = q.Encode()
	}
	return target, nil
}

func (e *Executor) newRequest(ctx context.Context, spec RequestSpec, target *url.URL, body []byte) (*http.Request, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, methodOf(spec), target.String(), reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	creds := e.store.Get()
	req.Header.Set("User-Agent", firstNonEmpty(creds.UserAgent, e.userAgent))

	if spec.Anonymous {
		req.Header.Set("Accept", "*/*")
	} else {
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Talk-App-ID", firstNonEmpty(creds.AppID, e.appID))
		if creds.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, values := range spec.Header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return req, creds.AccessToken, nil
}

func methodOf(spec RequestSpec) string {
	if spec.Method == "" {
		return http.MethodGet
	}
	return spec.Method
}

// drainAndClose lets the connection be reused
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
