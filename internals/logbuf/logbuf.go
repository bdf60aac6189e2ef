// Package logbuf collects the log lines of one unit of work (an HTTP request,
// a webhook message) and emits them as a single structured record.
package logbuf

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

type Entry struct {
	Level   slog.Level
	Message string
	At      time.Time
	Seq     uint64
	Attrs   []slog.Attr
}

type Logger struct {
	mu     sync.Mutex
	attrs  []slog.Attr
	buffer *buffer
}

type buffer struct {
	mu      sync.Mutex
	entries []Entry
	seq     uint64
	max     slog.Level
}

// New starts a fresh buffer.
func New(attrs ...slog.Attr) *Logger {
	return &Logger{attrs: slices.Clone(attrs), buffer: &buffer{max: slog.LevelDebug}}
}

// With returns a logger that writes to the same buffer with extra attrs.
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{attrs: append(slices.Clone(l.attrs), attrs...), buffer: l.buffer}
}

// Fork returns a logger with the same attrs plus extra ones and a buffer of
// its own, so concurrent units of work never mix entries.
func (l *Logger) Fork(attrs ...slog.Attr) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return New(append(slices.Clone(l.attrs), attrs...)...)
}

// Add attaches attrs to the flushed record rather than to a single entry.
func (l *Logger) Add(attrs ...slog.Attr) {
	l.mu.Lock()
	l.attrs = append(l.attrs, attrs...)
	l.mu.Unlock()
}

func (l *Logger) Debug(message string, attrs ...slog.Attr) {
	l.append(slog.LevelDebug, message, attrs)
}

func (l *Logger) Info(message string, attrs ...slog.Attr) {
	l.append(slog.LevelInfo, message, attrs)
}

func (l *Logger) Warn(message string, attrs ...slog.Attr) {
	l.append(slog.LevelWarn, message, attrs)
}

func (l *Logger) Error(message string, attrs ...slog.Attr) {
	l.append(slog.LevelError, message, attrs)
}

// Level is the highest level logged since the last flush.
func (l *Logger) Level() slog.Level {
	l.buffer.mu.Lock()
	defer l.buffer.mu.Unlock()
	return l.buffer.max
}

// Flush drains the buffer into one group attr holding the logger's attrs and
// an "entries" list.
func (l *Logger) Flush() slog.Attr {
	buf := l.buffer
	buf.mu.Lock()
	entries := buf.entries
	buf.entries = nil
	buf.seq = 0
	buf.max = slog.LevelDebug
	buf.mu.Unlock()

	l.mu.Lock()
	args := make([]any, 0, len(l.attrs)+1)
	for _, attr := range l.attrs {
		args = append(args, attr)
	}
	l.mu.Unlock()
	args = append(args, slog.Any("entries", entriesToPayload(entries)))
	return slog.Group("", args...)
}

func (l *Logger) append(level slog.Level, message string, attrs []slog.Attr) {
	buf := l.buffer
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.seq++
	buf.entries = append(buf.entries, Entry{
		Level:   level,
		Message: message,
		At:      time.Now(),
		Seq:     buf.seq,
		Attrs:   slices.Clone(attrs),
	})
	if level > buf.max {
		buf.max = level
	}
}

func entriesToPayload(entries []Entry) []map[string]any {
	payload := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := attrsToMap(entry.Attrs)
		item["message"] = entry.Message
		item["level"] = entry.Level.String()
		item["at"] = entry.At
		item["seq"] = entry.Seq
		payload = append(payload, item)
	}
	return payload
}

func attrsToMap(attrs []slog.Attr) map[string]any {
	result := map[string]any{}
	for _, attr := range attrs {
		if attr.Key == "" && attr.Value.Kind() == slog.KindGroup {
			for key, value := range attrsToMap(attr.Value.Group()) {
				result[key] = value
			}
			continue
		}
		if attr.Key == "" {
			continue
		}
		if attr.Value.Kind() == slog.KindGroup {
			result[attr.Key] = attrsToMap(attr.Value.Group())
			continue
		}
		result[attr.Key] = attr.Value.Resolve().Any()
	}
	return result
}
