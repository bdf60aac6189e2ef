package taskynats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Oudwins/wocs/internals/tasky"
)

type Config struct {
	// URL is dialled when Conn is nil.
	URL     string
	Conn    *nats.Conn
	Subject string
	// Group is the queue group shared by all consumers of Subject.
	Group      string
	RetryDelay func(attempts int) time.Duration
	RetryMax   int
}

// Backend publishes tasks to a NATS subject and consumes them through a queue
// group subscription, so each message reaches one consumer. Core NATS does not
// persist messages: tasks published while no consumer is subscribed are lost,
// and messages are delivered in arrival order regardless of priority.
type Backend[T ~string] struct {
	nc       *nats.Conn
	owned    bool
	sub      *nats.Subscription
	cfg      Config
	mu       sync.Mutex
	inFlight map[string]envelope
	timers   map[*time.Timer]struct{}
	closed   bool
}

type envelope struct {
	JobID    string `json:"jobId"`
	TaskID   string `json:"taskId"`
	Payload  []byte `json:"payload"`
	Priority int    `json:"priority"`
	Attempts int    `json:"attempts"`
}

func New[T ~string](cfg Config) (*Backend[T], error) {
	if cfg.Subject == "" {
		return nil, errors.New("nats backend requires a subject")
	}
	if cfg.Group == "" {
		cfg.Group = cfg.Subject + ".workers"
	}

	nc := cfg.Conn
	owned := false
	if nc == nil {
		if cfg.URL == "" {
			return nil, errors.New("nats backend requires a conn or url")
		}
		conn, err := nats.Connect(cfg.URL, nats.Name("wocs-queue"))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		nc = conn
		owned = true
	}

	sub, err := nc.QueueSubscribeSync(cfg.Subject, cfg.Group)
	if err != nil {
		if owned {
			nc.Close()
		}
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}

	return &Backend[T]{
		nc:       nc,
		owned:    owned,
		sub:      sub,
		cfg:      cfg,
		inFlight: make(map[string]envelope),
		timers:   make(map[*time.Timer]struct{}),
	}, nil
}

func (b *Backend[T]) Enqueue(ctx context.Context, task *tasky.Task[T]) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return b.publish(envelope{
		JobID:    string(task.JobID),
		TaskID:   task.TaskID,
		Payload:  task.Payload,
		Priority: task.Priority,
		Attempts: task.Attempts,
	})
}

func (b *Backend[T]) Dequeue(ctx context.Context) (*tasky.Task[T], error) {
	for {
		msg, err := b.sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil || env.TaskID == "" {
			// Foreign or corrupt message on the subject. Nothing to retry.
			continue
		}

		b.mu.Lock()
		b.inFlight[env.TaskID] = env
		b.mu.Unlock()

		return &tasky.Task[T]{
			JobID:    T(env.JobID),
			TaskID:   env.TaskID,
			Payload:  env.Payload,
			Priority: env.Priority,
			Attempts: env.Attempts,
		}, nil
	}
}

func (b *Backend[T]) Ack(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inFlight[taskID]; !ok {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	delete(b.inFlight, taskID)
	return nil
}

// Nack republishes the task after the retry delay with its attempt count bumped.
func (b *Backend[T]) Nack(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, ok := b.inFlight[taskID]
	if !ok {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	delete(b.inFlight, taskID)
	env.Attempts++
	if b.cfg.RetryMax >= 0 && env.Attempts > b.cfg.RetryMax {
		return tasky.ErrRetriesExceeded
	}

	var delay time.Duration
	if b.cfg.RetryDelay != nil {
		delay = b.cfg.RetryDelay(env.Attempts)
	}
	if delay <= 0 {
		return b.publish(env)
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		closed := b.closed
		b.mu.Unlock()
		if !closed {
			_ = b.publish(env)
		}
	})
	b.timers[timer] = struct{}{}
	return nil
}

func (b *Backend[T]) Close() error {
	b.mu.Lock()
	b.closed = true
	for timer := range b.timers {
		timer.Stop()
	}
	clear(b.timers)
	b.mu.Unlock()

	err := b.sub.Unsubscribe()
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		err = nil
	}
	if b.owned {
		b.nc.Close()
	}
	return err
}

func (b *Backend[T]) publish(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.cfg.Subject, data)
}
