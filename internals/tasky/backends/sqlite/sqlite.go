package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Oudwins/wocs/internals/tasky"
	_ "modernc.org/sqlite"
)

type Config struct {
	// Path opens a dedicated database file. Ignored when DB is set.
	Path         string
	DB           *sql.DB
	QueueName    string
	RetryDelay   func(attempts int) time.Duration
	RetryMax     int
	PollInterval time.Duration
}

// Backend is a durable queue stored in one sqlite table. Rows are never
// deleted: acked rows become 'completed', exhausted rows 'failed'.
type Backend[T ~string] struct {
	db     *sql.DB
	owned  bool
	signal chan struct{}
	cfg    Config
	stmts  *preparedStatements
}

func New[T ~string](cfg Config) (*Backend[T], error) {
	if cfg.DB == nil && cfg.Path == "" {
		return nil, errors.New("sqlite backend requires a db or path")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "tasky_queue"
	}
	if err := validateQueueName(cfg.QueueName); err != nil {
		return nil, err
	}

	db := cfg.DB
	owned := false
	if db == nil {
		opened, err := sql.Open("sqlite", "file:"+cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
		if err != nil {
			return nil, err
		}
		if err := opened.Ping(); err != nil {
			opened.Close()
			return nil, err
		}
		db = opened
		owned = true
	}

	backend := &Backend[T]{
		db:     db,
		owned:  owned,
		signal: make(chan struct{}, 1),
		cfg:    cfg,
	}
	if err := backend.init(); err != nil {
		backend.closeDB()
		return nil, err
	}
	stmts, err := prepareStatements(db, cfg.QueueName)
	if err != nil {
		backend.closeDB()
		return nil, err
	}
	backend.stmts = stmts
	return backend, nil
}

func (b *Backend[T]) Enqueue(ctx context.Context, task *tasky.Task[T]) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if task.TaskID == "" {
		return errors.New("task id is empty")
	}

	now := time.Now().UTC().UnixNano()
	if err := b.stmts.insert(ctx, queueItem{
		taskID:    task.TaskID,
		jobID:     string(task.JobID),
		payload:   task.Payload,
		priority:  task.Priority,
		createdAt: now,
		availAt:   now,
	}); err != nil {
		return err
	}
	b.notify()
	return nil
}

func (b *Backend[T]) Dequeue(ctx context.Context) (*tasky.Task[T], error) {
	timer := time.NewTimer(b.cfg.PollInterval)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		item, err := b.stmts.dequeue(ctx, time.Now().UTC().UnixNano())
		if err != nil {
			return nil, err
		}
		if item != nil {
			return &tasky.Task[T]{
				JobID:    T(item.jobID),
				TaskID:   item.taskID,
				Payload:  item.payload,
				Priority: item.priority,
				Attempts: item.attempts,
			}, nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.cfg.PollInterval)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.signal:
		case <-timer.C:
		}
	}
}

func (b *Backend[T]) Ack(ctx context.Context, taskID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	rows, err := b.stmts.ack(ctx, time.Now().UTC().UnixNano(), taskID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	return nil
}

func (b *Backend[T]) Nack(ctx context.Context, taskID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	attempts, err := b.stmts.retrySelect(ctx, tx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unknown task id: %v", taskID)
		}
		return err
	}

	now := time.Now().UTC()
	attempts++
	if b.cfg.RetryMax >= 0 && attempts > b.cfg.RetryMax {
		if err := b.stmts.retryFail(ctx, tx, attempts, now.UnixNano(), taskID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return tasky.ErrRetriesExceeded
	}

	availableAt := now
	if b.cfg.RetryDelay != nil {
		if delay := b.cfg.RetryDelay(attempts); delay > 0 {
			availableAt = now.Add(delay)
		}
	}
	if err := b.stmts.retryPending(ctx, tx, attempts, availableAt.UnixNano(), now.UnixNano(), taskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	b.notify()
	return nil
}

// Pending counts rows waiting to be dequeued, including delayed retries.
func (b *Backend[T]) Pending(ctx context.Context) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status = 'pending'`, b.cfg.QueueName)).Scan(&count)
	return count, err
}

func (b *Backend[T]) Close() error {
	b.stmts.Close()
	return b.closeDB()
}

func (b *Backend[T]) closeDB() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

func (b *Backend[T]) init() error {
	_, err := b.db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	payload BLOB,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	available_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_%s_dequeue ON %s(status, available_at, priority DESC, created_at ASC);
`, b.cfg.QueueName, b.cfg.QueueName, b.cfg.QueueName))
	return err
}

func (b *Backend[T]) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

type queueItem struct {
	taskID    string
	jobID     string
	payload   []byte
	priority  int
	attempts  int
	createdAt int64
	availAt   int64
}

type preparedStatements struct {
	stmtDequeue      *sql.Stmt
	stmtInsert       *sql.Stmt
	stmtAck          *sql.Stmt
	stmtRetrySelect  *sql.Stmt
	stmtRetryFail    *sql.Stmt
	stmtRetryPending *sql.Stmt
}

func prepareStatements(db *sql.DB, queueName string) (*preparedStatements, error) {
	queries := map[**sql.Stmt]string{}
	stmts := &preparedStatements{}
	queries[&stmts.stmtDequeue] = fmt.Sprintf(`
WITH next AS (
	SELECT id
	FROM %s
	WHERE status = 'pending' AND available_at <= ?
	ORDER BY priority DESC, created_at ASC
	LIMIT 1
)
UPDATE %s
SET status = 'in_flight', updated_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, job_id, payload, priority, attempts
`, queueName, queueName)
	queries[&stmts.stmtInsert] = fmt.Sprintf(`
INSERT INTO %s (id, job_id, payload, priority, status, attempts, available_at, created_at, updated_at, completed_at)
VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?, NULL)
`, queueName)
	queries[&stmts.stmtAck] = fmt.Sprintf(`
UPDATE %s
SET status = 'completed', updated_at = ?, completed_at = ?
WHERE id = ? AND status = 'in_flight'
`, queueName)
	queries[&stmts.stmtRetrySelect] = fmt.Sprintf(`
SELECT attempts
FROM %s
WHERE id = ? AND status = 'in_flight'
`, queueName)
	queries[&stmts.stmtRetryFail] = fmt.Sprintf(`
UPDATE %s
SET status = 'failed', attempts = ?, updated_at = ?
WHERE id = ?
`, queueName)
	queries[&stmts.stmtRetryPending] = fmt.Sprintf(`
UPDATE %s
SET status = 'pending', attempts = ?, available_at = ?, updated_at = ?
WHERE id = ?
`, queueName)

	for target, query := range queries {
		stmt, err := db.Prepare(query)
		if err != nil {
			stmts.Close()
			return nil, err
		}
		*target = stmt
	}
	return stmts, nil
}

func (s *preparedStatements) Close() {
	if s == nil {
		return
	}
	for _, stmt := range []*sql.Stmt{s.stmtDequeue, s.stmtInsert, s.stmtAck, s.stmtRetrySelect, s.stmtRetryFail, s.stmtRetryPending} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (s *preparedStatements) dequeue(ctx context.Context, now int64) (*queueItem, error) {
	row := s.stmtDequeue.QueryRowContext(ctx, now, now)
	var item queueItem
	if err := row.Scan(&item.taskID, &item.jobID, &item.payload, &item.priority, &item.attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *preparedStatements) insert(ctx context.Context, item queueItem) error {
	_, err := s.stmtInsert.ExecContext(ctx, item.taskID, item.jobID, item.payload, item.priority, item.attempts, item.availAt, item.createdAt, item.createdAt)
	return err
}

func (s *preparedStatements) ack(ctx context.Context, now int64, taskID string) (int64, error) {
	res, err := s.stmtAck.ExecContext(ctx, now, now, taskID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *preparedStatements) retrySelect(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	var attempts int
	err := tx.StmtContext(ctx, s.stmtRetrySelect).QueryRowContext(ctx, taskID).Scan(&attempts)
	return attempts, err
}

func (s *preparedStatements) retryFail(ctx context.Context, tx *sql.Tx, attempts int, now int64, taskID string) error {
	_, err := tx.StmtContext(ctx, s.stmtRetryFail).ExecContext(ctx, attempts, now, taskID)
	return err
}

func (s *preparedStatements) retryPending(ctx context.Context, tx *sql.Tx, attempts int, availableAt int64, now int64, taskID string) error {
	_, err := tx.StmtContext(ctx, s.stmtRetryPending).ExecContext(ctx, attempts, availableAt, now, taskID)
	return err
}

var queueNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateQueueName(name string) error {
	if !queueNamePattern.MatchString(name) {
		return fmt.Errorf("invalid queue name: %q", name)
	}
	return nil
}
