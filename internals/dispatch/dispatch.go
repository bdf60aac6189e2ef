// Package dispatch hands claimed tasks to the execution entry point, either
// in-process or through a tasky queue.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Oudwins/wocs/internals/conf"
	"github.com/Oudwins/wocs/internals/tasky"
	"github.com/Oudwins/wocs/internals/tasky/backends/memory"
	taskynats "github.com/Oudwins/wocs/internals/tasky/backends/nats"
	"github.com/Oudwins/wocs/internals/tasky/backends/sqlite"
)

// ExecuteFunc runs a claimed task. A returned error is an infrastructure
// failure and is retried; task-level failures are recorded by the callee.
type ExecuteFunc func(ctx context.Context, taskID string) error

type Hooks struct {
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(ctx context.Context, taskID string, attempt int, err error)
	// OnGiveUp is called once a task will not be attempted again.
	OnGiveUp func(ctx context.Context, taskID string, err error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string, priority int) error
	// Run consumes queued work until ctx is done. Inline dispatchers return at once.
	Run(ctx context.Context) error
	Close() error
	Mode() conf.QueueBackend
}

type Options struct {
	Target  conf.QueueTarget
	Queue   conf.QueueConfig
	Execute ExecuteFunc
	Hooks   Hooks
	Logger  *slog.Logger
}

func New(opts Options) (Dispatcher, error) {
	if opts.Execute == nil {
		return nil, fmt.Errorf("dispatch: execute func is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	retryDelay := tasky.RetryPolicy{
		Base: opts.Queue.BackoffBaseDuration(),
		Max:  opts.Queue.BackoffMaxDuration(),
	}.Delay

	var backend tasky.Backend[JobID]
	switch opts.Target.Backend {
	case conf.QueueInline, "":
		return NewInline(opts.Execute, opts.Hooks, opts.Logger), nil
	case conf.QueueMemory:
		backend = memory.New[JobID](memory.Config{RetryMax: opts.Queue.RetryMax, RetryDelay: retryDelay})
	case conf.QueueSQLite:
		b, err := sqlite.New[JobID](sqlite.Config{
			Path:       opts.Target.Address,
			QueueName:  "wocs_queue",
			RetryMax:   opts.Queue.RetryMax,
			RetryDelay: retryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("sqlite queue: %w", err)
		}
		backend = b
	case conf.QueueNATS:
		b, err := taskynats.New[JobID](taskynats.Config{
			URL:        opts.Target.Address,
			Subject:    opts.Queue.Subject,
			RetryMax:   opts.Queue.RetryMax,
			RetryDelay: retryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("nats queue: %w", err)
		}
		backend = b
	default:
		return nil, fmt.Errorf("dispatch: unknown queue backend %q", opts.Target.Backend)
	}

	return NewQueued(opts.Target.Backend, backend, opts.Queue.Workers, opts.Execute, opts.Hooks, opts.Logger)
}
