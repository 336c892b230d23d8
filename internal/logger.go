package internal

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// SecureLogger is a printf-style logger on top of zap that scrubs
// credentials from every message before it is written.
type SecureLogger struct {
	mu        sync.RWMutex
	zl        *zap.Logger
	out       zapcore.WriteSyncer
	level     zap.AtomicLevel
	fields    []zap.Field
	debug     bool
	quiet     bool
	redactors []Redactor
}

// Redactor defines an interface for redacting sensitive information
type Redactor interface {
	Redact(input string) string
}

var (
	cookieHeaderPattern = regexp.MustCompile(`(?i)((?:set-)?cookie:\s*)([^\r\n]*)`)
	cookieValuePattern  = regexp.MustCompile(`=([^;,\s]+)`)
	bearerPattern       = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/=]+`)
	urlParamPattern     = regexp.MustCompile(`(?i)((?:access_token|refresh_token|token|key|secret|password)=)[^&\s"]+`)
	jsonTokenPattern    = regexp.MustCompile(`(?i)("(?:access_token|refresh_token)"\s*:\s*")[^"]*`)
)

// CookieRedactor masks every cookie value following a Cookie or Set-Cookie header
type CookieRedactor struct{}

func (r *CookieRedactor) Redact(input string) string {
	return cookieHeaderPattern.ReplaceAllStringFunc(input, func(header string) string {
		m := cookieHeaderPattern.FindStringSubmatch(header)
		return m[1] + cookieValuePattern.ReplaceAllString(m[2], "=[REDACTED]")
	})
}

// BearerRedactor masks bearer tokens
type BearerRedactor struct{}

func (r *BearerRedactor) Redact(input string) string {
	return bearerPattern.ReplaceAllString(input, "${1}[REDACTED]")
}

// URLRedactor redacts sensitive URL parameters
type URLRedactor struct{}

func (r *URLRedactor) Redact(input string) string {
	return urlParamPattern.ReplaceAllString(input, "${1}[REDACTED]")
}

// TokenRedactor masks tokens embedded in JSON bodies
type TokenRedactor struct{}

func (r *TokenRedactor) Redact(input string) string {
	return jsonTokenPattern.ReplaceAllString(input, "${1}[REDACTED]")
}

// NewSecureLogger creates a new secure logger writing console-encoded lines to output
func NewSecureLogger(output io.Writer, level LogLevel, debug, quiet bool) *SecureLogger {
	sl := &SecureLogger{
		out:   zapcore.AddSync(output),
		level: zap.NewAtomicLevelAt(level.zapLevel()),
		debug: debug,
		quiet: quiet,
		redactors: []Redactor{
			&CookieRedactor{},
			&BearerRedactor{},
			&URLRedactor{},
			&TokenRedactor{},
		},
	}
	if debug {
		sl.level.SetLevel(zapcore.DebugLevel)
	}
	if quiet {
		sl.level.SetLevel(zapcore.ErrorLevel)
	}
	sl.zl = sl.build()

	return sl
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	level := LogLevelInfo
	if debug {
		level = LogLevelDebug
	}
	if quiet {
		level = LogLevelError
	}

	return NewSecureLogger(os.Stderr, level, debug, quiet)
}

func (sl *SecureLogger) build() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if !sl.debug {
		cfg.CallerKey = zapcore.OmitKey
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), sl.out, sl.level)

	opts := []zap.Option{zap.AddCallerSkip(2)}
	if sl.debug {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...).With(sl.fields...)
}

// redactSensitiveData applies all redactors to the input string
func (sl *SecureLogger) redactSensitiveData(input string) string {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	result := input
	for _, redactor := range sl.redactors {
		result = redactor.Redact(result)
	}
	return result
}

func (sl *SecureLogger) logger() *zap.Logger {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.zl
}

func (sl *SecureLogger) log(level zapcore.Level, format string, args ...any) {
	zl := sl.logger()
	if !zl.Core().Enabled(level) {
		return
	}

	message := sl.redactSensitiveData(fmt.Sprintf(format, args...))
	if ce := zl.Check(level, message); ce != nil {
		ce.Write()
	}
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...any) {
	sl.log(zapcore.ErrorLevel, format, args...)
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...any) {
	sl.log(zapcore.WarnLevel, format, args...)
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...any) {
	sl.log(zapcore.InfoLevel, format, args...)
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...any) {
	sl.log(zapcore.DebugLevel, format, args...)
}

// With returns a child logger carrying extra structured fields. Level,
// debug and quiet settings are shared with the parent.
func (sl *SecureLogger) With(fields ...zap.Field) *SecureLogger {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	child := &SecureLogger{
		out:       sl.out,
		level:     sl.level,
		fields:    append(append([]zap.Field(nil), sl.fields...), fields...),
		debug:     sl.debug,
		quiet:     sl.quiet,
		redactors: append([]Redactor(nil), sl.redactors...),
	}
	child.zl = sl.zl.With(fields...)
	return child
}

// LogHTTPRequest logs an HTTP request with sensitive data redacted
func (sl *SecureLogger) LogHTTPRequest(req *http.Request) {
	if !sl.logger().Core().Enabled(zapcore.DebugLevel) {
		return
	}

	sl.Debug("HTTP Request: %s %s Headers: %v", req.Method, req.URL.String(), sl.sanitizeHeaders(req.Header))
}

// LogHTTPResponse logs an HTTP response with sensitive data redacted
func (sl *SecureLogger) LogHTTPResponse(resp *http.Response) {
	if !sl.logger().Core().Enabled(zapcore.DebugLevel) {
		return
	}

	sl.Debug("HTTP Response: %d %s Headers: %v", resp.StatusCode, resp.Status, sl.sanitizeHeaders(resp.Header))
}

func (sl *SecureLogger) sanitizeHeaders(header http.Header) map[string]string {
	sanitized := make(map[string]string, len(header))
	for name, values := range header {
		if sl.isSensitiveHeader(name) {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

// isSensitiveHeader checks if a header contains sensitive information
func (sl *SecureLogger) isSensitiveHeader(name string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"cookie",
		"set-cookie",
		"x-auth-token",
		"x-api-key",
		"bearer",
		"token",
	}

	lowerName := strings.ToLower(name)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SetLevel sets the logging level
func (sl *SecureLogger) SetLevel(level LogLevel) {
	sl.level.SetLevel(level.zapLevel())
}

// SetDebug enables or disables debug mode
func (sl *SecureLogger) SetDebug(debug bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.debug = debug
	if debug && sl.level.Level() > zapcore.DebugLevel {
		sl.level.SetLevel(zapcore.DebugLevel)
	}
	sl.zl = sl.build()
}

// SetQuiet enables or disables quiet mode
func (sl *SecureLogger) SetQuiet(quiet bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.quiet = quiet
	if quiet {
		sl.level.SetLevel(zapcore.ErrorLevel)
	}
}

// AddRedactor adds a custom redactor
func (sl *SecureLogger) AddRedactor(redactor Redactor) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.redactors = append(sl.redactors, redactor)
}

// Sync flushes buffered log entries
func (sl *SecureLogger) Sync() error {
	return sl.logger().Sync()
}
