package logbuf

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

func flushAttrs(t *testing.T, logger *Logger) map[string]any {
	t.Helper()
	return attrsToMap(logger.Flush().Value.Group())
}

func TestWithSharesBufferAndKeepsAttrs(t *testing.T) {
	logger := New(slog.String("request_id", "r1"))
	child := logger.With(slog.String("task_id", "TASK-000001"))
	child.Info("hello")
	logger.Info("from parent")

	attrs := flushAttrs(t, child)
	if attrs["request_id"] != "r1" || attrs["task_id"] != "TASK-000001" {
		t.Fatalf("expected parent and child attrs, got %v", attrs)
	}
	entries, ok := attrs["entries"].([]map[string]any)
	if !ok || len(entries) != 2 {
		t.Fatalf("expected both entries in the shared buffer, got %v", attrs["entries"])
	}

	parentAttrs := flushAttrs(t, logger)
	if _, ok := parentAttrs["task_id"]; ok {
		t.Fatalf("child attrs leaked into parent")
	}
}

func TestNewBuffersAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.Info("only a")

	entries := flushAttrs(t, b)["entries"].([]map[string]any)
	if len(entries) != 0 {
		t.Fatalf("expected empty buffer for b, got %v", entries)
	}
}

func TestAddAppendsAttrs(t *testing.T) {
	logger := New(slog.String("a", "1"))
	logger.Add(slog.Int("status", 200))

	attrs := flushAttrs(t, logger)
	if attrs["a"] != "1" || attrs["status"] != int64(200) {
		t.Fatalf("expected attrs to include a and status, got %v", attrs)
	}
}

func TestFlushResetsBufferAndLevel(t *testing.T) {
	logger := New()
	logger.Info("first")
	logger.Error("bad")
	if logger.Level() != slog.LevelError {
		t.Fatalf("expected error level, got %v", logger.Level())
	}

	_ = logger.Flush()
	if logger.Level() != slog.LevelDebug {
		t.Fatalf("expected level reset, got %v", logger.Level())
	}

	logger.Info("second")
	entries := flushAttrs(t, logger)["entries"].([]map[string]any)
	if len(entries) != 1 || entries[0]["seq"] != uint64(1) {
		t.Fatalf("expected seq to restart at 1, got %v", entries)
	}
}

func TestEntriesToPayloadKeepsReservedKeys(t *testing.T) {
	entries := []Entry{{
		Level:   slog.LevelInfo,
		Message: "hello",
		At:      time.Now().UTC(),
		Seq:     1,
		Attrs:   []slog.Attr{slog.String("message", "override"), slog.String("extra", "ok")},
	}}

	payload := entriesToPayload(entries)
	if payload[0]["message"] != "hello" {
		t.Fatalf("expected reserved message to stay, got %v", payload[0]["message"])
	}
	if payload[0]["extra"] != "ok" || payload[0]["level"] != "INFO" {
		t.Fatalf("unexpected payload %v", payload[0])
	}
}

func TestConcurrentLogging(t *testing.T) {
	logger := New(slog.String("k", "v"))

	const count = 50
	var wg sync.WaitGroup
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func(i int) {
			defer wg.Done()
			logger.With(slog.Int("worker", i)).Info("msg", slog.Int("i", i))
		}(i)
	}
	wg.Wait()

	entries := flushAttrs(t, logger)["entries"].([]map[string]any)
	if len(entries) != count {
		t.Fatalf("expected %d entries, got %d", count, len(entries))
	}
}

func TestForkKeepsAttrsWithOwnBuffer(t *testing.T) {
	root := New(slog.String("version", "1"))
	a := root.Fork(slog.String("request_id", "a"))
	b := root.Fork(slog.String("request_id", "b"))
	a.Info("from a")

	attrs := flushAttrs(t, a)
	if attrs["version"] != "1" || attrs["request_id"] != "a" {
		t.Fatalf("expected inherited and own attrs, got %v", attrs)
	}
	if entries := flushAttrs(t, b)["entries"].([]map[string]any); len(entries) != 0 {
		t.Fatalf("expected b to have its own empty buffer, got %v", entries)
	}
	if entries := flushAttrs(t, root)["entries"].([]map[string]any); len(entries) != 0 {
		t.Fatalf("expected root buffer untouched, got %v", entries)
	}
}
