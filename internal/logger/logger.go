// Package logger configures the process-wide structured logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is an alias for slog.Level.
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
)

// EnvLevel is consulted when no level is given explicitly.
const EnvLevel = "LOGCHECK_LOG_LEVEL"

var programLevel = new(slog.LevelVar)

// ParseLevel converts a level name to a slog.Level. Matching is
// case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("logger: unknown log level %q", s)
	}
}

// Setup builds a logger writing to w (stderr when nil) and installs it as the
// slog default. format is "text" or "json". An empty level falls back to
// $LOGCHECK_LOG_LEVEL, then info.
func Setup(level, format string, w io.Writer) (*slog.Logger, error) {
	if level == "" {
		level = os.Getenv(EnvLevel)
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	programLevel.Set(lvl)

	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: programLevel, ReplaceAttr: renameTrace}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("logger: unknown log format %q (available: text, json)", format)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault returns l, or the slog default when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// SetLevel changes the minimum level of loggers built by Setup.
func SetLevel(l slog.Level) { programLevel.Set(l) }

// GetLevel returns the current minimum level.
func GetLevel() slog.Level { return programLevel.Level() }

// Trace logs below debug, for per-rule detail.
func Trace(l *slog.Logger, msg string, args ...any) {
	OrDefault(l).Log(context.Background(), LevelTrace, msg, args...)
}

// renameTrace prints the custom trace level by name instead of "DEBUG-4".
func renameTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
