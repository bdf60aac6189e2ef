package dispatch

import (
	"context"
	"log/slog"

	"github.com/Oudwins/wocs/internals/conf"
)

// Inline runs the task on the caller's goroutine. There is no retry: an
// infrastructure error gives the task up immediately.
type Inline struct {
	execute ExecuteFunc
	hooks   Hooks
	logger  *slog.Logger
}

func NewInline(execute ExecuteFunc, hooks Hooks, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{execute: execute, hooks: hooks, logger: logger}
}

func (d *Inline) Dispatch(ctx context.Context, taskID string, priority int) error {
	if err := d.execute(ctx, taskID); err != nil {
		d.logger.Error("[DISPATCH] Inline execution failed", slog.String("taskId", taskID), slog.String("error", err.Error()))
		if d.hooks.OnGiveUp != nil {
			d.hooks.OnGiveUp(context.WithoutCancel(ctx), taskID, err)
		}
		return err
	}
	return nil
}

func (d *Inline) Run(ctx context.Context) error { return nil }

func (d *Inline) Close() error { return nil }

func (d *Inline) Mode() conf.QueueBackend { return conf.QueueInline }
