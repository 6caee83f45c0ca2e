package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel selects the minimum severity that gets emitted.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger emits structured JSON log records. Field-adding methods return a
// derived logger and leave the receiver untouched, so a shared base logger
// is safe to use from multiple goroutines.
type Logger struct {
	inner *slog.Logger
	level LogLevel
}

// NewLogger builds a JSON logger writing to output (stdout when nil).
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level.slogLevel(),
	})
	return &Logger{inner: slog.New(handler), level: level}
}

// WithField returns a logger that attaches key=value to every record.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{inner: l.inner.With(key, value), level: l.level}
}

// WithFields returns a logger carrying every entry of fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{inner: l.inner.With(args...), level: l.level}
}

// WithError attaches the error message under the "error" key. A nil error
// returns the receiver unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) { l.inner.Debug(message) }
func (l *Logger) Info(message string)  { l.inner.Info(message) }
func (l *Logger) Warn(message string)  { l.inner.Warn(message) }
func (l *Logger) Error(message string) { l.inner.Error(message) }

func (l *Logger) Debugf(format string, args ...any) {
	l.inner.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.inner.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.inner.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.inner.Error(fmt.Sprintf(format, args...))
}
