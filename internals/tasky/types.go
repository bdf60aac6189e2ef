package tasky

import (
	"context"
	"errors"
)

// ErrRetriesExceeded is returned by Backend.Nack once a task has used up its
// retry budget. The task is dropped from the queue.
var ErrRetriesExceeded = errors.New("retries exceeded")

type Job[T ~string] struct {
	ID       T
	Priority int
	Run      func(ctx context.Context, task *Task[T]) error
}

type Task[T ~string] struct {
	JobID    T
	TaskID   string
	Payload  []byte
	Priority int
	// Attempts counts previous failed runs of this task.
	Attempts int
}

// OnErrorHandler observes job and backend failures. Returning a non-nil error
// stops the consumer.
type OnErrorHandler[T ~string] func(err error, task *Task[T]) error

type QueueConfig[T ~string] struct {
	Jobs      []Job[T]
	Backend   Backend[T]
	TaskIDGen func() string
	OnError   OnErrorHandler[T]
}

type Backend[T ~string] interface {
	Enqueue(ctx context.Context, task *Task[T]) error
	Dequeue(ctx context.Context) (*Task[T], error)
	Ack(ctx context.Context, taskID string) error
	Nack(ctx context.Context, taskID string) error
	Close() error
}
