// Package scheduler periodically promotes due pending tasks to running.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Oudwins/wocs/internals/store"
)

type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]store.Task, error)
}

// Promoter claims a pending task and hands it to the dispatcher. It reports
// false when another writer claimed the task first.
type Promoter interface {
	Promote(ctx context.Context, task store.Task, actor string) (bool, error)
}

type Options struct {
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

type Loop struct {
	due      DueLister
	promoter Promoter
	opts     Options
}

const Actor = "scheduler"

func New(due DueLister, promoter Promoter, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loop{due: due, promoter: promoter, opts: opts}
}

// Run ticks once immediately and then on every interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	l.opts.Logger.Info("[SCHEDULER] Started", slog.Duration("interval", l.opts.Interval))
	for {
		if _, err := l.Tick(ctx); err != nil && ctx.Err() == nil {
			l.opts.Logger.Error("[SCHEDULER] Tick failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			l.opts.Logger.Info("[SCHEDULER] Stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick promotes every task due now and returns how many this loop claimed.
// A failure on one task is logged and does not stop the others.
func (l *Loop) Tick(ctx context.Context) (int, error) {
	tasks, err := l.due.ListDue(ctx, l.opts.Now(), l.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return promoted, ctx.Err()
		}
		claimed, err := l.promoter.Promote(ctx, task, Actor)
		if err != nil {
			l.opts.Logger.Error("[SCHEDULER] Promote failed", slog.String("taskId", task.ID), slog.String("error", err.Error()))
			continue
		}
		if claimed {
			promoted++
		}
	}
	if promoted > 0 {
		l.opts.Logger.Debug("[SCHEDULER] Promoted due tasks", slog.Int("count", promoted))
	}
	return promoted, nil
}
