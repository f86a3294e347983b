package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// LogEntry is one captured log record
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// TestLogger captures everything logged through Logger() so tests can assert
// on levels, messages and attributes
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

// Logger returns a *slog.Logger that records into this TestLogger
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&captureHandler{sink: l})
}

func (l *TestLogger) record(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *TestLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesAt returns the entries logged at exactly level
func (l *TestLogger) EntriesAt(level slog.Level) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (l *TestLogger) HasError() bool {
	return len(l.EntriesAt(slog.LevelError)) > 0
}

func (l *TestLogger) HasWarning() bool {
	return len(l.EntriesAt(slog.LevelWarn)) > 0
}

// Contains reports whether any entry's message contains substr
func (l *TestLogger) Contains(substr string) bool {
	for _, e := range l.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

type captureHandler struct {
	sink  *TestLogger
	attrs []slog.Attr
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.sink.record(LogEntry{Level: r.Level, Message: r.Message, Attrs: attrs})
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{sink: h.sink, attrs: merged}
}

// Groups are flattened; nothing in this module logs with groups.
func (h *captureHandler) WithGroup(_ string) slog.Handler {
	return h
}
