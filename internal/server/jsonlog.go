// jsonlog.go - Structured logging for the spool daemon.
//
// Thin field-map API over log/slog; JSON output for production, text for
// development.
package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LogConfig selects the level and output format of the process logger.
type LogConfig struct {
	Level  string
	Format string
}

func (l LogLevel) slogLevel() slog.Level {
	switch LogLevel(strings.ToLower(string(l))) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides structured logging with free-form fields.
type Logger struct {
	handler slog.Handler
}

// DefaultLogger is the process-wide logger used by the package helpers.
// ConfigureLogging replaces it at startup.
var DefaultLogger = NewLogger(os.Stdout, LogLevelInfo, LogFormatText)

// NewLogger returns a Logger writing to w. Unknown levels fall back to
// info and unknown formats to text.
func NewLogger(w io.Writer, level LogLevel, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level.slogLevel(),
		AddSource: true,
	}
	var h slog.Handler
	if strings.EqualFold(format, LogFormatJSON) {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{handler: h}
}

// ConfigureLogging installs a new DefaultLogger writing to stdout. It is
// meant to be called once, before the server starts.
func ConfigureLogging(cfg LogConfig) {
	DefaultLogger = NewLogger(os.Stdout, LogLevel(cfg.Level), cfg.Format)
}

// discardLogger drops everything; used by tests.
func discardLogger() *Logger {
	return NewLogger(io.Discard, LogLevelError, LogFormatText)
}

// log writes one entry. The source attribute points at the caller of the
// exported helper, hence the fixed skip.
func (l *Logger) log(level slog.Level, msg string, fields map[string]any, err error) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	rec := slog.NewRecord(time.Now(), level, msg, pcs[0])
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.AddAttrs(slog.Any(k, fields[k]))
	}
	if err != nil {
		rec.AddAttrs(slog.String("error", err.Error()))
	}
	_ = l.handler.Handle(ctx, rec)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log(slog.LevelDebug, msg, fields, nil)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(slog.LevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log(slog.LevelWarn, msg, fields, nil)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields map[string]any, err error) {
	l.log(slog.LevelError, msg, fields, err)
}

// Global logging functions

// Debug logs a debug message
func Debug(msg string, fields map[string]any) {
	DefaultLogger.log(slog.LevelDebug, msg, fields, nil)
}

// Info logs an info message
func Info(msg string, fields map[string]any) {
	DefaultLogger.log(slog.LevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func Warn(msg string, fields map[string]any) {
	DefaultLogger.log(slog.LevelWarn, msg, fields, nil)
}

// Error logs an error message
func Error(msg string, fields map[string]any, err error) {
	DefaultLogger.log(slog.LevelError, msg, fields, err)
}
