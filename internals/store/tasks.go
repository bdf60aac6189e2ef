package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Oudwins/wocs/internals/schemas"
)

const taskIDPrefix = "TASK-"

type Task struct {
	ID          string
	Type        schemas.TaskType
	RawCommand  string
	PayloadJSON string
	Status      schemas.TaskStatus
	Priority    int
	RequestedBy string
	AssignedTo  string
	ScheduledAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
	ResultJSON  string
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Due reports whether the task may run at now.
func (t *Task) Due(now time.Time) bool {
	return t.ScheduledAt == nil || !t.ScheduledAt.After(now)
}

type NewTask struct {
	Type        schemas.TaskType
	RawCommand  string
	PayloadJSON string
	Status      schemas.TaskStatus
	Priority    int
	RequestedBy string
	AssignedTo  string
	ScheduledAt *time.Time
}

// StatusUpdate carries the auxiliary columns written together with a status
// change. Nil fields keep their stored value.
type StatusUpdate struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       *string
	ResultJSON  *string
}

type TaskFilter struct {
	Status schemas.TaskStatus
	Type   schemas.TaskType
	Limit  int
}

const taskColumns = `id, type, raw_command, payload_json, status, priority, requested_by, assigned_to,
	scheduled_at, started_at, completed_at, error, result_json, retry_count, created_at, updated_at`

// CreateTask allocates the next id from the sequence table and inserts the
// task in the same transaction.
func (s *Store) CreateTask(ctx context.Context, input NewTask) (*Task, error) {
	if input.PayloadJSON == "" {
		input.PayloadJSON = "{}"
	}
	now := s.timestamp()
	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO task_sequence (created_at) VALUES (?)`, now)
		if err != nil {
			return err
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = FormatTaskID(seq)
		_, err = tx.ExecContext(ctx, `
INSERT INTO tasks (id, seq, type, raw_command, payload_json, status, priority, requested_by, assigned_to, scheduled_at, retry_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
`, id, seq, input.Type, input.RawCommand, input.PayloadJSON, input.Status, input.Priority,
			nullIfEmpty(input.RequestedBy), nullIfEmpty(input.AssignedTo), nullTime(input.ScheduledAt), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return s.GetTask(ctx, id)
}

func FormatTaskID(seq int64) string {
	return fmt.Sprintf("%s%06d", taskIDPrefix, seq)
}

func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	where := []string{}
	args := []any{}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListDue returns pending tasks whose scheduled time has passed, highest
// priority first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+taskColumns+`
FROM tasks
WHERE status = ? AND (scheduled_at IS NULL OR scheduled_at <= ?)
ORDER BY priority DESC, seq ASC
LIMIT ?
`, schemas.TaskStatusPending, formatTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TransitionStatus moves the task to status `to` only while its current status
// is one of `from`. The boolean is the claim signal: false means another
// writer moved the task first (or it was never in `from`).
func (s *Store) TransitionStatus(ctx context.Context, id string, from []schemas.TaskStatus, to schemas.TaskStatus, update StatusUpdate) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition requires at least one source status")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{to, nullTime(update.StartedAt), nullTime(update.CompletedAt), nullString(update.Error), nullString(update.ResultJSON), s.timestamp(), id}
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks
SET status = ?,
	started_at = COALESCE(?, started_at),
	completed_at = COALESCE(?, completed_at),
	error = COALESCE(?, error),
	result_json = COALESCE(?, result_json),
	updated_at = ?
WHERE id = ? AND status IN (`+placeholders+`)
`, args...)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) IncrementRetry(ctx context.Context, id string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE tasks
SET retry_count = retry_count + 1, updated_at = ?
WHERE id = ?
RETURNING retry_count
`, s.timestamp(), id)
	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var requestedBy, assignedTo, scheduledAt, startedAt, completedAt, errMsg, resultJSON sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&task.ID, &task.Type, &task.RawCommand, &task.PayloadJSON, &task.Status, &task.Priority,
		&requestedBy, &assignedTo, &scheduledAt, &startedAt, &completedAt, &errMsg, &resultJSON,
		&task.RetryCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	task.RequestedBy = requestedBy.String
	task.AssignedTo = assignedTo.String
	task.ScheduledAt = parseNullTime(scheduledAt)
	task.StartedAt = parseNullTime(startedAt)
	task.CompletedAt = parseNullTime(completedAt)
	task.Error = errMsg.String
	task.ResultJSON = resultJSON.String
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	tasks := []Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
