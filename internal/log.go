package internal

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logsMaxSize    = 10 // megabytes
	logsMaxBackups = 3
	logsMaxAge     = 28 // days
)

var (
	// Global logger instance
	globalLogger *SecureLogger
	loggerMutex  sync.RWMutex
)

// InitLogger initializes the global logger with the given configuration
func InitLogger(config *Config) error {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	level := parseLogLevel(config.LogLevel)

	var output io.Writer = os.Stderr
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return NewValidationError("log_file", "failed to open log file").
				WithSuggestion("Check file permissions and path validity").
				WithContext("file", config.LogFile).
				WithContext("error", err.Error())
		}
		_ = f.Close()

		output = &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    logsMaxSize,
			MaxBackups: logsMaxBackups,
			MaxAge:     logsMaxAge,
		}
	}

	globalLogger = NewSecureLogger(output, level, config.EnableDebug, config.QuietMode)

	return nil
}

// SetLogger replaces the global logger
func SetLogger(logger *SecureLogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

// GetLogger returns the global logger instance
func GetLogger() *SecureLogger {
	loggerMutex.RLock()
	logger := globalLogger
	loggerMutex.RUnlock()
	if logger != nil {
		return logger
	}

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefaultLogger(false, false)
	}
	return globalLogger
}

// parseLogLevel converts string log level to LogLevel enum
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Convenience functions for global logging. They log one frame deeper
// so the reported caller is the package that called them.

func globalCaller() *SecureLogger {
	return GetLogger().skip(1)
}

// LogError logs an error message using the global logger
func LogError(format string, args ...any) {
	globalCaller().Error(format, args...)
}

// LogWarn logs a warning message using the global logger
func LogWarn(format string, args ...any) {
	globalCaller().Warn(format, args...)
}

// LogInfo logs an info message using the global logger
func LogInfo(format string, args ...any) {
	globalCaller().Info(format, args...)
}

// LogDebug logs a debug message using the global logger
func LogDebug(format string, args ...any) {
	globalCaller().Debug(format, args...)
}

// LogRequestError logs a RequestError at the level matching its severity
func LogRequestError(err *RequestError) {
	logger := globalCaller()

	switch err.Severity {
	case SeverityCritical:
		logger.Error("CRITICAL: %s", err.DetailedError())
	case SeverityError:
		logger.Error("%s", err.DetailedError())
	case SeverityWarning:
		logger.Warn("%s", err.DetailedError())
	case SeverityInfo:
		logger.Info("%s", err.DetailedError())
	default:
		logger.Error("%s", err.DetailedError())
	}
}

// LogValidationError logs a ValidationError
func LogValidationError(err *ValidationError) {
	globalCaller().Error("Validation Error: %s", err.DetailedError())
}

// SetLogLevel updates the global logger's log level
func SetLogLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

// SetDebugMode enables or disables debug mode on the global logger
func SetDebugMode(debug bool) {
	GetLogger().SetDebug(debug)
}

// SetQuietMode enables or disables quiet mode on the global logger
func SetQuietMode(quiet bool) {
	GetLogger().SetQuiet(quiet)
}

// skip returns a view of sl whose caller annotation skips n extra frames
func (sl *SecureLogger) skip(n int) *SecureLogger {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	return &SecureLogger{
		zl:        sl.zl.WithOptions(zap.AddCallerSkip(n)),
		out:       sl.out,
		level:     sl.level,
		fields:    sl.fields,
		debug:     sl.debug,
		quiet:     sl.quiet,
		redactors: sl.redactors,
	}
}
