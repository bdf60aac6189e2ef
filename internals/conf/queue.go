package conf

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

type QueueBackend string

const (
	QueueInline QueueBackend = "inline"
	QueueMemory QueueBackend = "memory"
	QueueSQLite QueueBackend = "sqlite"
	QueueNATS   QueueBackend = "nats"
)

// QueueTarget is the parsed form of WOCS_QUEUE_URL.
type QueueTarget struct {
	Backend QueueBackend
	// Address is the sqlite file path or the NATS server URL.
	Address string
}

// ParseQueueURL maps WOCS_QUEUE_URL to a backend. Empty means inline
// execution. Relative sqlite paths are resolved against dataDir.
func ParseQueueURL(raw, dataDir string) (QueueTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return QueueTarget{Backend: QueueInline}, nil
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return QueueTarget{}, fmt.Errorf("queue url %q has no scheme", raw)
	}

	switch strings.ToLower(scheme) {
	case "memory":
		return QueueTarget{Backend: QueueMemory}, nil
	case "sqlite":
		path := rest
		if path == "" {
			path = "queue.db"
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		return QueueTarget{Backend: QueueSQLite, Address: path}, nil
	case "nats", "tls":
		if _, err := url.Parse(raw); err != nil {
			return QueueTarget{}, fmt.Errorf("queue url %q: %w", raw, err)
		}
		return QueueTarget{Backend: QueueNATS, Address: raw}, nil
	}
	return QueueTarget{}, fmt.Errorf("unsupported queue scheme %q", scheme)
}
