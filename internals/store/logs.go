package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Oudwins/wocs/internals/schemas"
)

type LogEntry struct {
	ID         int64
	TaskID     string
	Action     schemas.LogAction
	Actor      string
	DetailJSON string
	CreatedAt  time.Time
}

// AppendLog records an audit entry. detail is marshalled to JSON; nil stores no detail.
func (s *Store) AppendLog(ctx context.Context, taskID string, action schemas.LogAction, actor string, detail any) (*LogEntry, error) {
	var detailJSON any
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			return nil, fmt.Errorf("marshal log detail: %w", err)
		}
		detailJSON = string(raw)
	}
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO task_logs (task_id, action, actor, detail_json, created_at)
VALUES (?, ?, ?, ?, ?)
`, taskID, action, nullIfEmpty(actor), detailJSON, now)
	if err != nil {
		return nil, fmt.Errorf("append log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	entry := &LogEntry{ID: id, TaskID: taskID, Action: action, Actor: actor, CreatedAt: parseTime(now)}
	if str, ok := detailJSON.(string); ok {
		entry.DetailJSON = str
	}
	return entry, nil
}

// ListLogs returns the task's log entries oldest first.
func (s *Store) ListLogs(ctx context.Context, taskID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, task_id, action, actor, detail_json, created_at
FROM task_logs
WHERE task_id = ?
ORDER BY id ASC
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// LastLogByAction returns the newest entry of the given action for a task.
func (s *Store) LastLogByAction(ctx context.Context, taskID string, action schemas.LogAction) (*LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, task_id, action, actor, detail_json, created_at
FROM task_logs
WHERE task_id = ? AND action = ?
ORDER BY id DESC
LIMIT 1
`, taskID, action)
	entry, err := scanLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s log for %s: %w", action, taskID, ErrNotFound)
		}
		return nil, err
	}
	return entry, nil
}

func scanLog(row rowScanner) (*LogEntry, error) {
	var entry LogEntry
	var actor, detail sql.NullString
	var createdAt string
	if err := row.Scan(&entry.ID, &entry.TaskID, &entry.Action, &actor, &detail, &createdAt); err != nil {
		return nil, err
	}
	entry.Actor = actor.String
	entry.DetailJSON = detail.String
	entry.CreatedAt = parseTime(createdAt)
	return &entry, nil
}
