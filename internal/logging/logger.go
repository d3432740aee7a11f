// Package logging configures log/slog for the service and provides Events, the
// immutable structured event logger used by the download pipeline.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Standard structured logging keys.
const (
	FieldFileNumber = "file_number"
	FieldRequestID  = "request_id"
	FieldDocumentID = "document_id"
	FieldProcess    = "process"
	FieldEvent      = "event"
	FieldDuration   = "duration"
	FieldComponent  = "component"
)

// New returns a slog.Logger writing to w. format is "json" or "text".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug/info/warn/error to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
