package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Oudwins/wocs/internals/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDue struct {
	mu    sync.Mutex
	tasks []store.Task
	err   error
	calls int
	nows  []time.Time
}

func (f *fakeDue) ListDue(ctx context.Context, now time.Time, limit int) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.nows = append(f.nows, now)
	return f.tasks, f.err
}

type fakePromoter struct {
	mu      sync.Mutex
	claimed map[string]bool
	errs    map[string]error
	seen    []string
}

func (f *fakePromoter) Promote(ctx context.Context, task store.Task, actor string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, task.ID+"/"+actor)
	if err := f.errs[task.ID]; err != nil {
		return false, err
	}
	if f.claimed[task.ID] {
		return false, nil
	}
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	f.claimed[task.ID] = true
	return true, nil
}

func TestTickPromotesDueTasks(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	due := &fakeDue{tasks: []store.Task{{ID: "TASK-000001"}, {ID: "TASK-000002"}, {ID: "TASK-000003"}}}
	promoter := &fakePromoter{
		claimed: map[string]bool{"TASK-000002": true},
		errs:    map[string]error{"TASK-000003": errors.New("dispatch down")},
	}
	loop := New(due, promoter, Options{Now: func() time.Time { return now }})

	promoted, err := loop.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("expected 1 promoted task, got %d", promoted)
	}
	if len(promoter.seen) != 3 || promoter.seen[0] != "TASK-000001/scheduler" {
		t.Fatalf("expected every due task to be attempted, got %v", promoter.seen)
	}
	if !due.nows[0].Equal(now) {
		t.Fatalf("expected injected clock, got %v", due.nows[0])
	}

	promoted, err = loop.Tick(context.Background())
	if err != nil || promoted != 0 {
		t.Fatalf("second tick should claim nothing: promoted=%d err=%v", promoted, err)
	}
}

func TestTickReturnsListError(t *testing.T) {
	loop := New(&fakeDue{err: errors.New("db gone")}, &fakePromoter{}, Options{})
	if _, err := loop.Tick(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	due := &fakeDue{}
	loop := New(due, &fakePromoter{}, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for {
		due.mu.Lock()
		calls := due.calls
		due.mu.Unlock()
		if calls >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 ticks, got %d", calls)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
