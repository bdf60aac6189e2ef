package tasky

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubBackend[T ~string] struct {
	enqueue func(ctx context.Context, task *Task[T]) error
	dequeue func(ctx context.Context) (*Task[T], error)
	ack     func(ctx context.Context, taskID string) error
	nack    func(ctx context.Context, taskID string) error
}

func (b *stubBackend[T]) Enqueue(ctx context.Context, task *Task[T]) error {
	if b.enqueue != nil {
		return b.enqueue(ctx, task)
	}
	return nil
}

func (b *stubBackend[T]) Dequeue(ctx context.Context) (*Task[T], error) {
	if b.dequeue != nil {
		return b.dequeue(ctx)
	}
	return nil, context.Canceled
}

func (b *stubBackend[T]) Ack(ctx context.Context, taskID string) error {
	if b.ack != nil {
		return b.ack(ctx, taskID)
	}
	return nil
}

func (b *stubBackend[T]) Nack(ctx context.Context, taskID string) error {
	if b.nack != nil {
		return b.nack(ctx, taskID)
	}
	return nil
}

func (b *stubBackend[T]) Close() error { return nil }

func noop(ctx context.Context, task *Task[string]) error { return nil }

func TestNewQueueValidation(t *testing.T) {
	_, err := NewQueue(QueueConfig[string]{})
	if err == nil {
		t.Fatal("expected error for nil backend")
	}

	backend := &stubBackend[string]{}
	_, err = NewQueue(QueueConfig[string]{
		Backend: backend,
		Jobs: []Job[string]{
			{ID: "alpha", Run: noop},
			{ID: "alpha", Run: noop},
		},
	})
	if err == nil {
		t.Fatal("expected error for duplicate job id")
	}

	_, err = NewQueue(QueueConfig[string]{
		Backend: backend,
		Jobs:    []Job[string]{{ID: "beta"}},
	})
	if err == nil {
		t.Fatal("expected error for nil Run handler")
	}
}

func TestEnqueueUnknownJob(t *testing.T) {
	queue, err := NewQueue(QueueConfig[string]{
		Backend: &stubBackend[string]{},
		Jobs:    []Job[string]{{ID: "alpha", Run: noop}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := queue.Enqueue(context.Background(), Task[string]{JobID: "missing"}); err == nil {
		t.Fatal("expected error for unknown job id")
	}
}

func TestEnqueueGeneratesTaskIDAndPriority(t *testing.T) {
	backend := &stubBackend[string]{}
	var gotTask Task[string]
	backend.enqueue = func(ctx context.Context, task *Task[string]) error {
		gotTask = *task
		return nil
	}

	queue, err := NewQueue(QueueConfig[string]{
		Backend:   backend,
		Jobs:      []Job[string]{{ID: "alpha", Priority: 7, Run: noop}},
		TaskIDGen: func() string { return "gen-1" },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taskID, err := queue.Enqueue(context.Background(), Task[string]{JobID: "alpha", Payload: []byte("payload")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskID != "gen-1" || gotTask.TaskID != "gen-1" {
		t.Fatalf("expected task id gen-1, got %v / %v", taskID, gotTask.TaskID)
	}
	if gotTask.Priority != 7 {
		t.Fatalf("expected job priority 7, got %d", gotTask.Priority)
	}

	if _, err := queue.Enqueue(context.Background(), Task[string]{JobID: "alpha", Priority: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTask.Priority != 3 {
		t.Fatalf("expected task priority to win, got %d", gotTask.Priority)
	}
}

func TestEnqueueDefaultIDsAreUnique(t *testing.T) {
	queue, err := NewQueue(QueueConfig[string]{
		Backend: &stubBackend[string]{},
		Jobs:    []Job[string]{{ID: "alpha", Run: noop}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := queue.Enqueue(context.Background(), Task[string]{JobID: "alpha"})
			if err != nil {
				t.Errorf("enqueue: %v", err)
				return
			}
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 10 {
		t.Fatalf("expected 10 unique ids, got %d", len(seen))
	}
}

func TestConsumerRunAckNack(t *testing.T) {
	dequeueCh := make(chan *Task[string])
	ackCh := make(chan string, 1)
	nackCh := make(chan string, 1)

	backend := &stubBackend[string]{
		dequeue: func(ctx context.Context) (*Task[string], error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case task := <-dequeueCh:
				return task, nil
			}
		},
		ack: func(ctx context.Context, taskID string) error {
			ackCh <- taskID
			return nil
		},
		nack: func(ctx context.Context, taskID string) error {
			nackCh <- taskID
			return nil
		},
	}

	queue, err := NewQueue(QueueConfig[string]{
		Backend: backend,
		Jobs: []Job[string]{
			{ID: "ok", Run: noop},
			{ID: "fail", Run: func(ctx context.Context, task *Task[string]) error { return errors.New("boom") }},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewConsumer(queue, ConsumerOptions{Workers: 1})
	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(ctx)
	}()

	dequeueCh <- &Task[string]{JobID: "ok", TaskID: "t1"}
	dequeueCh <- &Task[string]{JobID: "fail", TaskID: "t2"}

	select {
	case got := <-ackCh:
		if got != "t1" {
			t.Fatalf("expected ack for t1, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ack")
	}

	select {
	case got := <-nackCh:
		if got != "t2" {
			t.Fatalf("expected nack for t2, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for nack")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for consumer shutdown")
	}
}

func TestConsumerReportsExhaustedRetries(t *testing.T) {
	backend := &stubBackend[string]{}
	backend.dequeue = func(ctx context.Context) (*Task[string], error) {
		return &Task[string]{JobID: "fail", TaskID: "t1"}, nil
	}
	backend.nack = func(ctx context.Context, taskID string) error {
		return ErrRetriesExceeded
	}

	jobErr := errors.New("boom")
	var reported error
	queue, err := NewQueue(QueueConfig[string]{
		Backend: backend,
		Jobs: []Job[string]{
			{ID: "fail", Run: func(ctx context.Context, task *Task[string]) error { return jobErr }},
		},
		OnError: func(err error, task *Task[string]) error {
			reported = err
			return err
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = NewConsumer(queue, ConsumerOptions{}).Run(context.Background())
	if !errors.Is(err, ErrRetriesExceeded) || !errors.Is(err, jobErr) {
		t.Fatalf("expected wrapped retries error, got %v", err)
	}
	if reported == nil {
		t.Fatal("expected OnError to be called")
	}
}

func TestConsumerOnErrorStops(t *testing.T) {
	backend := &stubBackend[string]{}
	backend.dequeue = func(ctx context.Context) (*Task[string], error) {
		return &Task[string]{JobID: "fail", TaskID: "t1"}, nil
	}

	stopErr := errors.New("stop")
	queue, err := NewQueue(QueueConfig[string]{
		Backend: backend,
		Jobs: []Job[string]{
			{ID: "fail", Run: func(ctx context.Context, task *Task[string]) error { return errors.New("boom") }},
		},
		OnError: func(err error, task *Task[string]) error {
			return stopErr
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	consumer := NewConsumer(queue, ConsumerOptions{Workers: 1})
	if err := consumer.Run(context.Background()); !errors.Is(err, stopErr) {
		t.Fatalf("expected stop error, got %v", err)
	}
}

func TestConsumerDefaultsWorkers(t *testing.T) {
	var calls int
	backend := &stubBackend[string]{
		dequeue: func(ctx context.Context) (*Task[string], error) {
			calls++
			return nil, context.Canceled
		},
	}
	queue, err := NewQueue(QueueConfig[string]{
		Backend: backend,
		Jobs:    []Job[string]{{ID: "ok", Run: noop}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = NewConsumer(queue, ConsumerOptions{}).Run(context.Background())
	if calls != 1 {
		t.Fatalf("expected 1 dequeue call, got %d", calls)
	}
}
