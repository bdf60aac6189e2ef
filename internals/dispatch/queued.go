package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/parsers/zjson"

	"github.com/Oudwins/wocs/internals/conf"
	"github.com/Oudwins/wocs/internals/tasky"
)

type JobID string

const JobExecuteTask JobID = "execute_task"

type jobPayload struct {
	TaskID string `json:"taskId" zog:"taskId"`
}

var jobPayloadSchema = z.Struct(z.Shape{
	"TaskID": z.String().Required().Trim(),
})

// Queued publishes task ids to a tasky queue and runs a consumer that feeds
// them to the execute func.
type Queued struct {
	mode     conf.QueueBackend
	queue    *tasky.Queue[JobID]
	consumer *tasky.Consumer[JobID]
	hooks    Hooks
	logger   *slog.Logger
}

func NewQueued(mode conf.QueueBackend, backend tasky.Backend[JobID], workers int, execute ExecuteFunc, hooks Hooks, logger *slog.Logger) (*Queued, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Queued{mode: mode, hooks: hooks, logger: logger}

	executeJob := tasky.Job[JobID]{
		ID: JobExecuteTask,
		Run: func(ctx context.Context, task *tasky.Task[JobID]) error {
			payload := jobPayload{}
			if issues := jobPayloadSchema.Parse(zjson.Decode(bytes.NewReader(task.Payload)), &payload); len(issues) > 0 {
				// A malformed message can never succeed. Drop it without retrying.
				d.logger.Error("[DISPATCH] Dropping malformed queue message", slog.String("queueTaskId", task.TaskID), slog.Any("issues", z.Issues.FlattenAndCollect(issues)))
				return nil
			}
			return execute(ctx, payload.TaskID)
		},
	}

	queue, err := tasky.NewQueue(tasky.QueueConfig[JobID]{
		Jobs:    []tasky.Job[JobID]{executeJob},
		Backend: backend,
		OnError: d.onError,
	})
	if err != nil {
		return nil, err
	}
	d.queue = queue
	d.consumer = tasky.NewConsumer(queue, tasky.ConsumerOptions{Workers: workers})
	return d, nil
}

func (d *Queued) Dispatch(ctx context.Context, taskID string, priority int) error {
	data, err := json.Marshal(jobPayload{TaskID: taskID})
	if err != nil {
		return err
	}
	queueID, err := d.queue.Enqueue(ctx, tasky.Task[JobID]{
		JobID:    JobExecuteTask,
		Payload:  data,
		Priority: priority,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskID, err)
	}
	d.logger.Debug("[DISPATCH] Enqueued task", slog.String("taskId", taskID), slog.String("queueTaskId", queueID), slog.String("mode", string(d.mode)))
	return nil
}

func (d *Queued) Run(ctx context.Context) error {
	return d.consumer.Run(ctx)
}

func (d *Queued) Close() error {
	return d.queue.Close()
}

func (d *Queued) Mode() conf.QueueBackend { return d.mode }

// onError never stops the consumer: failures are recorded on the task.
func (d *Queued) onError(err error, task *tasky.Task[JobID]) error {
	if task == nil {
		d.logger.Error("[DISPATCH] Queue backend error", slog.String("error", err.Error()))
		return nil
	}

	payload := jobPayload{}
	_ = json.Unmarshal(task.Payload, &payload)
	ctx := context.Background()

	if errors.Is(err, tasky.ErrRetriesExceeded) {
		d.logger.Error("[DISPATCH] Task gave up", slog.String("taskId", payload.TaskID), slog.Int("attempts", task.Attempts+1), slog.String("error", err.Error()))
		if d.hooks.OnGiveUp != nil && payload.TaskID != "" {
			d.hooks.OnGiveUp(ctx, payload.TaskID, err)
		}
		return nil
	}

	d.logger.Warn("[DISPATCH] Task attempt failed", slog.String("taskId", payload.TaskID), slog.Int("attempt", task.Attempts+1), slog.String("error", err.Error()))
	if d.hooks.OnRetry != nil && payload.TaskID != "" {
		d.hooks.OnRetry(ctx, payload.TaskID, task.Attempts+1, err)
	}
	return nil
}
