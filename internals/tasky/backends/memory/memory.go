package memory

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Oudwins/wocs/internals/tasky"
)

type Config struct {
	RetryDelay func(attempts int) time.Duration
	// RetryMax is the number of retries allowed after the first attempt.
	// Negative disables the limit.
	RetryMax int
}

// Backend is an in-process priority queue. Nothing survives a restart.
type Backend[T ~string] struct {
	mu       sync.Mutex
	pending  priorityQueue[T]
	inFlight map[string]*queueItem[T]
	timers   map[*time.Timer]struct{}
	signal   chan struct{}
	seq      uint64
	closed   bool
	cfg      Config
}

func New[T ~string](cfg Config) *Backend[T] {
	backend := &Backend[T]{
		pending:  priorityQueue[T]{},
		inFlight: make(map[string]*queueItem[T]),
		timers:   make(map[*time.Timer]struct{}),
		signal:   make(chan struct{}, 1),
		cfg:      cfg,
	}
	heap.Init(&backend.pending)
	return backend
}

func (b *Backend[T]) Enqueue(ctx context.Context, task *tasky.Task[T]) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memory backend closed")
	}

	heap.Push(&b.pending, &queueItem[T]{
		jobID:    task.JobID,
		taskID:   task.TaskID,
		payload:  task.Payload,
		priority: task.Priority,
		seq:      b.nextSeq(),
	})
	b.signalLocked()
	return nil
}

func (b *Backend[T]) Dequeue(ctx context.Context) (*tasky.Task[T], error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		b.mu.Lock()
		if b.pending.Len() > 0 {
			item := heap.Pop(&b.pending).(*queueItem[T])
			b.inFlight[item.taskID] = item
			if b.pending.Len() > 0 {
				b.signalLocked()
			}
			b.mu.Unlock()
			return item.task(), nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.signal:
		}
	}
}

func (b *Backend[T]) Ack(ctx context.Context, taskID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.inFlight[taskID]; !ok {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	delete(b.inFlight, taskID)
	return nil
}

func (b *Backend[T]) Nack(ctx context.Context, taskID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.inFlight[taskID]
	if !ok {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	delete(b.inFlight, taskID)
	item.attempts++
	if b.cfg.RetryMax >= 0 && item.attempts > b.cfg.RetryMax {
		return tasky.ErrRetriesExceeded
	}
	item.seq = b.nextSeq()

	var delay time.Duration
	if b.cfg.RetryDelay != nil {
		delay = b.cfg.RetryDelay(item.attempts)
	}
	if delay <= 0 {
		heap.Push(&b.pending, item)
		b.signalLocked()
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.timers, timer)
		if b.closed {
			return
		}
		heap.Push(&b.pending, item)
		b.signalLocked()
	})
	b.timers[timer] = struct{}{}
	return nil
}

// Close stops pending retry timers. Queued tasks are discarded.
func (b *Backend[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for timer := range b.timers {
		timer.Stop()
	}
	clear(b.timers)
	return nil
}

// Len reports the number of tasks waiting to be dequeued.
func (b *Backend[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

func (b *Backend[T]) signalLocked() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Backend[T]) nextSeq() uint64 {
	b.seq++
	return b.seq
}

type queueItem[T ~string] struct {
	jobID    T
	taskID   string
	payload  []byte
	priority int
	seq      uint64
	attempts int
}

func (i *queueItem[T]) task() *tasky.Task[T] {
	return &tasky.Task[T]{
		JobID:    i.jobID,
		TaskID:   i.taskID,
		Payload:  i.payload,
		Priority: i.priority,
		Attempts: i.attempts,
	}
}

type priorityQueue[T ~string] []*queueItem[T]

func (q priorityQueue[T]) Len() int { return len(q) }

func (q priorityQueue[T]) Less(i, j int) bool {
	if q[i].priority == q[j].priority {
		return q[i].seq < q[j].seq
	}
	return q[i].priority > q[j].priority
}

func (q priorityQueue[T]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *priorityQueue[T]) Push(x any) {
	*q = append(*q, x.(*queueItem[T]))
}

func (q *priorityQueue[T]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
