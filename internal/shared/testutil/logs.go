package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// LogRecord is a captured record with its attributes flattened. Attributes
// under a group are keyed "group.key".
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

type logSink struct {
	mu      sync.Mutex
	records []LogRecord
}

// BufferedSlogHandler keeps every record it handles. Handlers derived with
// WithAttrs or WithGroup append to the same buffer.
type BufferedSlogHandler struct {
	sink   *logSink
	attrs  map[string]any
	prefix string
	t      *testing.T
}

// NewTestLogger returns a logger over a fresh BufferedSlogHandler. Records
// are echoed to t.Log when t is non-nil.
func NewTestLogger(t *testing.T) (*slog.Logger, *BufferedSlogHandler) {
	h := &BufferedSlogHandler{sink: &logSink{}, attrs: map[string]any{}, t: t}
	return slog.New(h), h
}

func (h *BufferedSlogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *BufferedSlogHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, h.prefix, a)
		return true
	})

	h.sink.mu.Lock()
	h.sink.records = append(h.sink.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	h.sink.mu.Unlock()

	if h.t != nil {
		h.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

func (h *BufferedSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		flatten(next.attrs, h.prefix, a)
	}
	return next
}

func (h *BufferedSlogHandler) WithGroup(name string) slog.Handler {
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *BufferedSlogHandler) clone() *BufferedSlogHandler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &BufferedSlogHandler{sink: h.sink, attrs: attrs, prefix: h.prefix, t: h.t}
}

func flatten(into map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(into, prefix+a.Key+".", ga)
		}
		return
	}
	into[prefix+a.Key] = v.Any()
}

// Records returns a copy of everything captured so far
func (h *BufferedSlogHandler) Records() []LogRecord {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return append([]LogRecord(nil), h.sink.records...)
}

func (h *BufferedSlogHandler) Count() int {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return len(h.sink.records)
}

// AtLevel returns the records logged at exactly level
func (h *BufferedSlogHandler) AtLevel(level slog.Level) []LogRecord {
	return h.filter(func(r LogRecord) bool { return r.Level == level })
}

// FindMessage returns the records whose message is exactly message
func (h *BufferedSlogHandler) FindMessage(message string) []LogRecord {
	return h.filter(func(r LogRecord) bool { return r.Message == message })
}

// ContainsAttr reports whether any record carries key=value
func (h *BufferedSlogHandler) ContainsAttr(key string, value any) bool {
	return len(h.filter(func(r LogRecord) bool {
		v, ok := r.Attrs[key]
		return ok && v == value
	})) > 0
}

func (h *BufferedSlogHandler) filter(keep func(LogRecord) bool) []LogRecord {
	var out []LogRecord
	for _, r := range h.Records() {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
