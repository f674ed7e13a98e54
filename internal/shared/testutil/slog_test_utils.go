package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// Entry is one captured log line, with bound and per-call attributes merged
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// CaptureHandler is a slog.Handler that records every log line in memory so
// tests can assert on what a component logged. Unlike a discard handler it
// honors WithAttrs and WithGroup, so attributes bound via Logger.With show up
// in the captured entries.
type CaptureHandler struct {
	sink *captureSink

	// bound state for this handler instance
	attrs  []slog.Attr
	groups []string
}

// captureSink is shared between a handler and every derivative created by
// WithAttrs/WithGroup, so all of them feed one entry list.
type captureSink struct {
	mu      sync.Mutex
	entries []Entry
	t       *testing.T
}

// NewCaptureHandler creates a capture handler. When t is non-nil every entry
// is also echoed through t.Logf so failing tests show the log stream.
func NewCaptureHandler(t *testing.T) *CaptureHandler {
	return &CaptureHandler{sink: &captureSink{t: t}}
}

// NewTestLogger returns a logger wired to a fresh capture handler
func NewTestLogger(t *testing.T) (*slog.Logger, *CaptureHandler) {
	h := NewCaptureHandler(t)
	return slog.New(h), h
}

// Enabled implements slog.Handler. Capture is unconditional so tests can
// assert on debug output without touching the level.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[h.qualify(a.Key)] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Resolve().Any()
		return true
	})

	entry := Entry{Time: r.Time, Level: r.Level, Message: r.Message, Attrs: attrs}

	h.sink.mu.Lock()
	h.sink.entries = append(h.sink.entries, entry)
	t := h.sink.t
	h.sink.mu.Unlock()

	if t != nil {
		t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

// qualify prefixes a key with the open group names, dot-separated
func (h *CaptureHandler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

// WithAttrs implements slog.Handler; the derivative shares the entry list
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := *h
	child.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &child
}

// WithGroup implements slog.Handler; the derivative shares the entry list
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	child := *h
	child.groups = append(append([]string{}, h.groups...), name)
	return &child
}

// Entries returns a snapshot of everything captured so far
func (h *CaptureHandler) Entries() []Entry {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	out := make([]Entry, len(h.sink.entries))
	copy(out, h.sink.entries)
	return out
}

// EntriesAt returns the captured entries at one level
func (h *CaptureHandler) EntriesAt(level slog.Level) []Entry {
	var out []Entry
	for _, e := range h.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// ContainsMessage reports whether any entry's message contains the substring
func (h *CaptureHandler) ContainsMessage(substr string) bool {
	for _, e := range h.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// ContainsAttr reports whether any entry carries the attribute
func (h *CaptureHandler) ContainsAttr(key string, value any) bool {
	for _, e := range h.Entries() {
		if got, ok := e.Attrs[key]; ok && got == value {
			return true
		}
	}
	return false
}

// Len returns the number of captured entries
func (h *CaptureHandler) Len() int {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return len(h.sink.entries)
}

// Reset discards everything captured so far
func (h *CaptureHandler) Reset() {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.entries = h.sink.entries[:0]
}

// RequireMessage fails the test unless a message containing substr was logged
// at the given level
func RequireMessage(t *testing.T, h *CaptureHandler, level slog.Level, substr string) {
	t.Helper()
	for _, e := range h.EntriesAt(level) {
		if strings.Contains(e.Message, substr) {
			return
		}
	}
	t.Errorf("no %s log containing %q; captured:", level, substr)
	for _, e := range h.EntriesAt(level) {
		t.Errorf("  %s", e.Message)
	}
}

// RequireNoErrors fails the test if anything was logged at error level
func RequireNoErrors(t *testing.T, h *CaptureHandler) {
	t.Helper()
	for _, e := range h.EntriesAt(slog.LevelError) {
		t.Errorf("unexpected error log: %s %v", e.Message, e.Attrs)
	}
}
