package logging

import (
	"log/slog"
	"time"
)

// Events is an immutable set of key/value fields bound to a logger. With
// never modifies the receiver; it returns a new Events carrying the union.
type Events struct {
	logger *slog.Logger
}

// NewEvents binds an event logger to base. A nil base discards events.
func NewEvents(base *slog.Logger) Events {
	if base == nil {
		base = NewNop()
	}
	return Events{logger: base}
}

// With returns a copy carrying the extra fields.
func (e Events) With(args ...any) Events {
	return Events{logger: e.base().With(args...)}
}

// Emit writes one event record with every bound field.
func (e Events) Emit(event string, args ...any) {
	e.base().Info(event, append([]any{slog.String(FieldEvent, event)}, args...)...)
}

// Error writes an event at error level with the cause attached.
func (e Events) Error(event string, err error, args ...any) {
	attrs := []any{slog.String(FieldEvent, event)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	e.base().Error(event, append(attrs, args...)...)
}

// Logger exposes the underlying slog logger with the bound fields.
func (e Events) Logger() *slog.Logger {
	return e.base()
}

// Time starts a timer that emits event with its duration when stopped.
func (e Events) Time(event string) *Timer {
	return &Timer{events: e, event: event, start: time.Now()}
}

func (e Events) base() *slog.Logger {
	if e.logger == nil {
		return NewNop()
	}
	return e.logger
}

// Timer measures one operation.
type Timer struct {
	events Events
	event  string
	start  time.Time
}

// Stop emits the timed event and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.events.Emit(t.event, slog.Float64(FieldDuration, d.Seconds()))
	return d
}
