package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	got, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Scheduler.IntervalDuration() != 30*time.Second {
		t.Fatalf("expected 30s scheduler interval, got %q", got.Scheduler.Interval)
	}
	if got.Queue.Workers != 2 || got.Queue.RetryMax != 3 {
		t.Fatalf("unexpected queue defaults %+v", got.Queue)
	}
	if got.Queue.BackoffBaseDuration() != time.Second || got.Queue.BackoffMaxDuration() != time.Minute {
		t.Fatalf("unexpected backoff defaults %+v", got.Queue)
	}
	if got.Queue.Subject != "wocs.tasks" {
		t.Fatalf("expected default subject, got %q", got.Queue.Subject)
	}
	if got.Version == "" {
		t.Fatalf("expected version to be set")
	}
}

func TestConfigFileOverrides(t *testing.T) {
	dir := t.TempDir()
	body := `{"scheduler":{"interval":"5s"},"queue":{"workers":4,"retry_max":1},"tasks":{"default_priority":2}}`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Scheduler.IntervalDuration() != 5*time.Second {
		t.Fatalf("expected 5s, got %q", got.Scheduler.Interval)
	}
	if got.Queue.Workers != 4 || got.Queue.RetryMax != 1 {
		t.Fatalf("unexpected queue %+v", got.Queue)
	}
	if got.Queue.Subject != "wocs.tasks" {
		t.Fatalf("expected untouched default subject, got %q", got.Queue.Subject)
	}
	if got.Tasks.DefaultPriority != 2 {
		t.Fatalf("expected default priority 2, got %d", got.Tasks.DefaultPriority)
	}
}

func TestConfigRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(`{"scheduler":{"interval":"soon"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestConfigEmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Queue.Workers != 2 {
		t.Fatalf("expected defaults, got %+v", got.Queue)
	}
}

func TestParseQueueURL(t *testing.T) {
	tests := []struct {
		raw     string
		backend QueueBackend
		address string
		wantErr bool
	}{
		{raw: "", backend: QueueInline},
		{raw: "memory://", backend: QueueMemory},
		{raw: "sqlite://queue.db", backend: QueueSQLite, address: "/data/queue.db"},
		{raw: "sqlite:///var/lib/wocs/q.db", backend: QueueSQLite, address: "/var/lib/wocs/q.db"},
		{raw: "nats://127.0.0.1:4222", backend: QueueNATS, address: "nats://127.0.0.1:4222"},
		{raw: "redis://localhost", wantErr: true},
		{raw: "localhost:4222", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseQueueURL(tt.raw, "/data")
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tt.raw, err)
		}
		if got.Backend != tt.backend || got.Address != tt.address {
			t.Fatalf("%q: got %+v", tt.raw, got)
		}
	}
}
