package internal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorKind classifies request failures surfaced by the executor and paginator
type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota + 1
	KindRateLimited
	KindTransport
	KindHTTP
	KindProtocol
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Sentinels for errors.Is. A *RequestError matches the sentinel of its kind.
var (
	ErrUnauthorized = &RequestError{Kind: KindUnauthorized}
	ErrRateLimited  = &RequestError{Kind: KindRateLimited}
	ErrTransport    = &RequestError{Kind: KindTransport}
	ErrHTTPStatus   = &RequestError{Kind: KindHTTP}
	ErrProtocol     = &RequestError{Kind: KindProtocol}

	// ErrSessionExpired is returned when cookies can no longer be exchanged
	// for a token. It requires a fresh browser login.
	ErrSessionExpired = &AuthError{Kind: AuthSessionExpired}
)

// maxBodyInError bounds the response body kept on HTTP errors
const maxBodyInError = 4096

// RequestError is a failed API call that was not recovered locally
type RequestError struct {
	Kind       ErrorKind      `json:"kind"`
	Severity   ErrorSeverity  `json:"severity"`
	StatusCode int            `json:"status_code,omitempty"`
	Body       string         `json:"body,omitempty"`
	Message    string         `json:"message,omitempty"`
	URL        string         `json:"url,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	RetryAfter time.Duration  `json:"retry_after,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Err        error          `json:"-"`
}

// Error implements the error interface
func (e *RequestError) Error() string {
	parts := []string{fmt.Sprintf("request error (%s)", e.Kind)}

	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("after %d attempts", e.Attempts))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, ": ")
}

// Unwrap exposes the underlying cause
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is matches any *RequestError of the same kind
func (e *RequestError) Is(target error) bool {
	var t *RequestError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// DetailedError returns a multi-line description for logs
func (e *RequestError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity, e.Kind))

	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("Status: %d", e.StatusCode))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}
	if e.Body != "" {
		parts = append(parts, fmt.Sprintf("Body: %s", e.Body))
	}
	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("Attempts: %d", e.Attempts))
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Err))
	}
	if len(e.Context) > 0 {
		parts = append(parts, fmt.Sprintf("Context: %s", formatContext(e.Context)))
	}
	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}
	if e.RetryAfter > 0 {
		parts = append(parts, fmt.Sprintf("Retry after: %s", e.RetryAfter))
	}

	return strings.Join(parts, "\n")
}

// WithURL records the request URL (redacted when printed)
func (e *RequestError) WithURL(url string) *RequestError {
	e.URL = url
	return e
}

// WithSuggestion overrides the default suggestion
func (e *RequestError) WithSuggestion(suggestion string) *RequestError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context information to the error
func (e *RequestError) WithContext(key string, value any) *RequestError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsRetryable reports whether a caller may reasonably retry the whole operation later
func (e *RequestError) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransport:
		return true
	case KindHTTP:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "Unauthorized"
	case KindRateLimited:
		return "RateLimited"
	case KindTransport:
		return "Transport"
	case KindHTTP:
		return "HTTP"
	case KindProtocol:
		return "Protocol"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func newRequestError(kind ErrorKind, message string) *RequestError {
	return &RequestError{
		Kind:       kind,
		Message:    message,
		Severity:   getDefaultSeverity(kind),
		Suggestion: getDefaultSuggestion(kind),
	}
}

// NewUnauthorizedError is returned when a request is still rejected after a token refresh
func NewUnauthorizedError(url string) *RequestError {
	return newRequestError(KindUnauthorized, "request rejected after token refresh").
		WithURL(url)
}

// NewRateLimitError is returned when the rate-limit retry budget is exhausted
func NewRateLimitError(url string, attempts int, retryAfter time.Duration) *RequestError {
	e := newRequestError(KindRateLimited, "rate limit exceeded").WithURL(url)
	e.StatusCode = 429
	e.Attempts = attempts
	e.RetryAfter = retryAfter
	return e
}

// NewTransportError wraps a network failure that survived all retries
func NewTransportError(url string, attempts int, cause error) *RequestError {
	e := newRequestError(KindTransport, "network failure").WithURL(url)
	e.Attempts = attempts
	e.Err = cause
	return e
}

// NewHTTPError reports a non-2xx status that is not retried
func NewHTTPError(url string, status int, body []byte) *RequestError {
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	e := newRequestError(KindHTTP, "unexpected status").WithURL(url)
	e.StatusCode = status
	e.Body = string(body)
	if status >= 500 {
		e.Suggestion = "Server error occurred. Please try again later"
	}
	return e
}

// NewProtocolError reports a response that violates the API contract
func NewProtocolError(url string, message string, cause error) *RequestError {
	e := newRequestError(KindProtocol, message).WithURL(url)
	e.Err = cause
	return e
}

// AuthErrorKind classifies authentication failures
type AuthErrorKind int

const (
	AuthSessionExpired AuthErrorKind = iota + 1
)

// String returns the string representation of AuthErrorKind
func (k AuthErrorKind) String() string {
	switch k {
	case AuthSessionExpired:
		return "SessionExpired"
	default:
		return "Unknown"
	}
}

// AuthError means the session cannot be recovered without a new login
type AuthError struct {
	Kind       AuthErrorKind `json:"kind"`
	Message    string        `json:"message,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Err        error         `json:"-"`
}

// Error implements the error interface
func (e *AuthError) Error() string {
	parts := []string{fmt.Sprintf("auth error (%s)", e.Kind)}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the underlying cause
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any *AuthError of the same kind
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// DetailedError returns a multi-line description for logs
func (e *AuthError) DetailedError() string {
	parts := []string{fmt.Sprintf("[CRITICAL] %s Error", e.Kind)}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}
	return strings.Join(parts, "\n")
}

// NewSessionExpiredError creates an error for cookies that can no longer be refreshed
func NewSessionExpiredError(message string, status int) *AuthError {
	return &AuthError{
		Kind:       AuthSessionExpired,
		Message:    message,
		StatusCode: status,
		Suggestion: "Log in again with the browser helper and export a fresh credentials file",
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string         `json:"field"`
	Message    string         `json:"message"`
	Value      any            `json:"value,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}
	if len(e.Context) > 0 {
		parts = append(parts, fmt.Sprintf("Context: %s", formatContext(e.Context)))
	}
	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]any),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value any) *ValidationError {
	e := NewValidationError(field, message)
	e.Value = value
	return e
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value any) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(kind ErrorKind) string {
	switch kind {
	case KindUnauthorized:
		return "The refreshed token was rejected. Log in again to obtain new credentials"
	case KindRateLimited:
		return "Please wait before retrying or lower MSGFETCH_REQUESTS_PER_SECOND"
	case KindTransport:
		return "Check your internet connection and try again. Consider using a proxy if needed"
	case KindHTTP:
		return "Check the request parameters; the API rejected the call"
	case KindProtocol:
		return "The API response did not match the expected format. The API might have changed"
	default:
		return "Please check the error details and try again"
	}
}

func getDefaultSeverity(kind ErrorKind) ErrorSeverity {
	switch kind {
	case KindRateLimited, KindTransport:
		return SeverityWarning
	case KindUnauthorized:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL strips the query string, which may carry tokens
func redactSensitiveURL(url string) string {
	if before, _, ok := strings.Cut(url, "?"); ok {
		return before + "?[REDACTED]"
	}
	return url
}

func formatContext(ctx map[string]any) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ctx[k]))
	}
	return strings.Join(parts, ", ")
}
