// Package logging builds the structured loggers used by the donsched
// command. Output goes to stderr by default; stdout is reserved for results.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New creates a logger writing to w.
//
// level: debug, info, warn, or error (see [ParseLevel])
// format: "text" (human-readable) or "json" (structured)
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
