package tasky

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type Queue[T ~string] struct {
	jobs      map[T]Job[T]
	backend   Backend[T]
	taskIDGen func() string
	onError   OnErrorHandler[T]
}

type ConsumerOptions struct {
	Workers int
}

type Consumer[T ~string] struct {
	queue   *Queue[T]
	options ConsumerOptions
}

func NewQueue[T ~string](cfg QueueConfig[T]) (*Queue[T], error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}

	jobs := make(map[T]Job[T], len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		if _, exists := jobs[job.ID]; exists {
			return nil, fmt.Errorf("duplicate job id: %v", job.ID)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %v has nil Run handler", job.ID)
		}
		jobs[job.ID] = job
	}

	taskIDGen := cfg.TaskIDGen
	if taskIDGen == nil {
		taskIDGen = uuid.NewString
	}

	return &Queue[T]{
		jobs:      jobs,
		backend:   cfg.Backend,
		taskIDGen: taskIDGen,
		onError:   cfg.OnError,
	}, nil
}

// Enqueue hands the task to the backend and returns its queue id. A zero
// Priority inherits the job's priority.
func (q *Queue[T]) Enqueue(ctx context.Context, task Task[T]) (string, error) {
	job, exists := q.jobs[task.JobID]
	if !exists {
		return "", fmt.Errorf("unknown job id: %v", task.JobID)
	}

	if task.TaskID == "" {
		task.TaskID = q.taskIDGen()
		if task.TaskID == "" {
			return "", errors.New("task id generator returned an empty id")
		}
	}
	if task.Priority == 0 {
		task.Priority = job.Priority
	}
	task.Attempts = 0

	if err := q.backend.Enqueue(ctx, &task); err != nil {
		return "", err
	}
	return task.TaskID, nil
}

func (q *Queue[T]) Close() error {
	return q.backend.Close()
}

func NewConsumer[T ~string](queue *Queue[T], options ConsumerOptions) *Consumer[T] {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	return &Consumer[T]{
		queue:   queue,
		options: options,
	}
}

// Run blocks until ctx is cancelled or the error handler asks to stop.
func (c *Consumer[T]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr atomic.Value
	var once sync.Once
	reportError := func(err error, task *Task[T]) {
		if err == nil || c.queue.onError == nil {
			return
		}
		if onErr := c.queue.onError(err, task); onErr != nil {
			once.Do(func() {
				runErr.Store(onErr)
				cancel()
			})
		}
	}

	var wg sync.WaitGroup
	wg.Add(c.options.Workers)
	for i := 0; i < c.options.Workers; i++ {
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				task, err := c.queue.backend.Dequeue(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					reportError(err, nil)
					continue
				}
				c.handle(ctx, task, reportError)
			}
		}()
	}
	wg.Wait()

	if errValue := runErr.Load(); errValue != nil {
		if err, ok := errValue.(error); ok {
			return err
		}
	}
	return nil
}

func (c *Consumer[T]) handle(ctx context.Context, task *Task[T], reportError func(error, *Task[T])) {
	job, ok := c.queue.jobs[task.JobID]
	if !ok {
		reportError(fmt.Errorf("unknown job id: %v", task.JobID), task)
		if ackErr := c.queue.backend.Ack(ctx, task.TaskID); ackErr != nil {
			reportError(ackErr, task)
		}
		return
	}

	if err := job.Run(ctx, task); err != nil {
		nackErr := c.queue.backend.Nack(ctx, task.TaskID)
		switch {
		case errors.Is(nackErr, ErrRetriesExceeded):
			reportError(fmt.Errorf("%w: %w", ErrRetriesExceeded, err), task)
		case nackErr != nil:
			reportError(nackErr, task)
		default:
			reportError(err, task)
		}
		return
	}

	if err := c.queue.backend.Ack(ctx, task.TaskID); err != nil {
		reportError(err, task)
	}
}
