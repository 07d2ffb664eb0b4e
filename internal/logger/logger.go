package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger defines a standard interface for logging.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// SlogLogger is a wrapper around Go's structured logger.
type SlogLogger struct {
	*slog.Logger
}

// NewLogger creates a new stdout logger instance based on the specified level.
func NewLogger(level string) Logger {
	return New(level, os.Stdout)
}

// New creates a logger writing JSON lines to w.
func New(level string, w io.Writer) *SlogLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return &SlogLogger{slog.New(handler)}
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debugf logs a message at the debug level.
func (l *SlogLogger) Debugf(format string, v ...interface{}) {
	l.Debug(fmt.Sprintf(format, v...))
}

// Infof logs a message at the info level.
func (l *SlogLogger) Infof(format string, v ...interface{}) {
	l.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a message at the warn level.
func (l *SlogLogger) Warnf(format string, v ...interface{}) {
	l.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs a message at the error level.
func (l *SlogLogger) Errorf(format string, v ...interface{}) {
	l.Error(fmt.Sprintf(format, v...))
}
