package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Oudwins/wocs/internals/conf"
	"github.com/Oudwins/wocs/internals/env"
	"github.com/Oudwins/wocs/internals/executor"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/internals/testutil"
)

func setupTestBase(t *testing.T, queueURL string) (*BaseServer, *testutil.Clock) {
	t.Helper()

	dataDir := t.TempDir()
	config, err := conf.Load(dataDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	base, err := Build(Options{
		Env:    &env.EnvStruct{QUEUE_URL: queueURL},
		Config: config,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("build base server: %v", err)
	}
	t.Cleanup(func() { _ = base.Close() })
	return base, clock
}

func logActions(t *testing.T, base *BaseServer, id string) []schemas.LogAction {
	t.Helper()
	entries, err := base.Store.ListLogs(context.Background(), id)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	actions := make([]schemas.LogAction, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

func createTask(t *testing.T, base *BaseServer, line string) *store.Task {
	t.Helper()
	res, err := base.Pipeline.Create(context.Background(), CreateRequest{Command: line, RequestedBy: "15550001111"})
	if err != nil {
		t.Fatalf("create %q: %v", line, err)
	}
	if !res.OK || res.Task == nil {
		t.Fatalf("create %q not ok: %s", line, res.Message)
	}
	return res.Task
}

// hookedStore runs a callback before each config write so tests can change
// the world while a task is executing.
type hookedStore struct {
	*store.Store
	beforeSetConfig func()
}

func (s hookedStore) SetConfig(ctx context.Context, key, value, actor string) (*store.ConfigEntry, *store.ConfigEntry, error) {
	if s.beforeSetConfig != nil {
		s.beforeSetConfig()
	}
	return s.Store.SetConfig(ctx, key, value, actor)
}

func TestConfigTaskWaitsForApprovalThenApplies(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()

	task := createTask(t, base, "/config key=theme value=dark")
	require.Equal(t, schemas.TaskStatusAwaitingApproval, task.Status)
	require.Equal(t, `{"key":"theme","value":"dark"}`, task.PayloadJSON)

	_, err := base.Store.GetConfig(ctx, "theme")
	require.True(t, errors.Is(err, store.ErrNotFound), "config must not change before approval")

	res, err := base.Pipeline.Approve(ctx, task.ID, "owner")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	require.Equal(t, schemas.TaskStatusDone, res.Task.Status)
	require.NotNil(t, res.Task.StartedAt)
	require.NotNil(t, res.Task.CompletedAt)

	entry, err := base.Store.GetConfig(ctx, "theme")
	require.NoError(t, err)
	require.Equal(t, "dark", entry.Value)
	require.Equal(t, 1, entry.Version)

	require.Equal(t, []schemas.LogAction{
		schemas.LogActionCreated,
		schemas.LogActionApproved,
		schemas.LogActionStarted,
		schemas.LogActionConfigUpdated,
		schemas.LogActionCompleted,
	}, logActions(t, base, task.ID))
}

func TestRollbackRestoresPreviousConfig(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()

	first := createTask(t, base, "/config key=theme value=light")
	_, err := base.Pipeline.Approve(ctx, first.ID, "owner")
	require.NoError(t, err)
	second := createTask(t, base, "/config key=theme value=dark")
	_, err = base.Pipeline.Approve(ctx, second.ID, "owner")
	require.NoError(t, err)

	res, err := base.Pipeline.Rollback(ctx, second.ID, "owner")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	require.Equal(t, schemas.TaskStatusRolledBack, res.Task.Status)

	entry, err := base.Store.GetConfig(ctx, "theme")
	require.NoError(t, err)
	require.Equal(t, "light", entry.Value)
	require.Equal(t, 3, entry.Version)

	actions := logActions(t, base, second.ID)
	require.Equal(t, schemas.LogActionRolledBack, actions[len(actions)-1])

	again, err := base.Pipeline.Rollback(ctx, second.ID, "owner")
	require.NoError(t, err)
	require.False(t, again.OK, "a rolled back task cannot be rolled back again")
}

func TestRollbackLogsRestoreWhenStatusChangesMidway(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()

	first := createTask(t, base, "/config key=theme value=light")
	_, err := base.Pipeline.Approve(ctx, first.ID, "owner")
	require.NoError(t, err)
	second := createTask(t, base, "/config key=theme value=dark")
	_, err = base.Pipeline.Approve(ctx, second.ID, "owner")
	require.NoError(t, err)

	base.Pipeline.executor = executor.New(hookedStore{Store: base.Store, beforeSetConfig: func() {
		ok, err := base.Store.TransitionStatus(ctx, second.ID, []schemas.TaskStatus{schemas.TaskStatusDone}, schemas.TaskStatusRolledBack, store.StatusUpdate{})
		if err != nil || !ok {
			t.Errorf("move task out of done: ok=%v err=%v", ok, err)
		}
	}}, nil)

	res, err := base.Pipeline.Rollback(ctx, second.ID, "owner")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, res.Message, "changed status during rollback")

	entry, err := base.Store.GetConfig(ctx, "theme")
	require.NoError(t, err)
	require.Equal(t, "light", entry.Value)

	last, err := base.Store.LastLogByAction(ctx, second.ID, schemas.LogActionRolledBack)
	require.NoError(t, err)
	require.Equal(t, "owner", last.Actor)
	require.Contains(t, last.DetailJSON, `"restored"`)
	require.Contains(t, last.DetailJSON, "changed status during rollback")
}

func TestRollbackWithoutConfigChangeFails(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()

	task := createTask(t, base, "/report name=weekly")
	require.Equal(t, schemas.TaskStatusDone, task.Status)

	before, err := base.Store.ListConfig(ctx)
	require.NoError(t, err)

	res, err := base.Pipeline.Rollback(ctx, task.ID, "owner")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, res.Message, "no config change")
	require.Equal(t, schemas.TaskStatusFailed, res.Task.Status)

	after, err := base.Store.ListConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRollbackRequiresFinishedTask(t *testing.T) {
	base, _ := setupTestBase(t, "")
	task := createTask(t, base, "/config key=theme value=dark")

	res, err := base.Pipeline.Rollback(context.Background(), task.ID, "owner")
	require.NoError(t, err)
	require.False(t, res.OK)
}

func TestRejectCancelsAndBlocksApproval(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()
	task := createTask(t, base, "/landing pageSlug=promo content=hello")

	res, err := base.Pipeline.Reject(ctx, task.ID, "owner", "not now")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, schemas.TaskStatusCancelled, res.Task.Status)
	require.Equal(t, "not now", res.Task.Error)

	res, err = base.Pipeline.Approve(ctx, task.ID, "owner")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, schemas.TaskStatusCancelled, res.Task.Status)

	versions, err := base.Store.ListLandingPageVersions(ctx, "promo")
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestCancelledRequestStillFinishesClaimedTask(t *testing.T) {
	base, _ := setupTestBase(t, "")
	task := createTask(t, base, "/config key=theme value=dark")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	base.Pipeline.executor = executor.New(hookedStore{Store: base.Store, beforeSetConfig: cancel}, nil)

	// The answer may fail to load once the request is gone; the task must not.
	_, _ = base.Pipeline.Approve(ctx, task.ID, "owner")
	require.Error(t, ctx.Err())

	bg := context.Background()
	stored, err := base.Store.GetTask(bg, task.ID)
	require.NoError(t, err)
	require.Equal(t, schemas.TaskStatusDone, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	entry, err := base.Store.GetConfig(bg, "theme")
	require.NoError(t, err)
	require.Equal(t, "dark", entry.Value)

	actions := logActions(t, base, task.ID)
	require.Equal(t, schemas.LogActionCompleted, actions[len(actions)-1])
}

func TestNonApprovalTaskRunsImmediately(t *testing.T) {
	base, _ := setupTestBase(t, "")
	task := createTask(t, base, "/assign agent=bob task=inbox")

	require.Equal(t, schemas.TaskStatusDone, task.Status)
	var result struct {
		OK   bool              `json:"ok"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(task.ResultJSON), &result))
	require.True(t, result.OK)
	require.Equal(t, map[string]string{"agent": "bob", "task": "inbox"}, result.Data)
	require.Equal(t, []schemas.LogAction{
		schemas.LogActionCreated,
		schemas.LogActionStarted,
		schemas.LogActionCompleted,
	}, logActions(t, base, task.ID))
}

func TestInvalidPayloadFailsTask(t *testing.T) {
	base, _ := setupTestBase(t, "")
	task := createTask(t, base, "/assign task=inbox")

	require.Equal(t, schemas.TaskStatusFailed, task.Status)
	require.Contains(t, task.Error, "agent is required")
	require.Equal(t, schemas.LogActionFailed, logActions(t, base, task.ID)[2])
}

func TestUnknownCommandCreatesNothing(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()

	res, err := base.Pipeline.Create(ctx, CreateRequest{Command: "/frobnicate x=1"})
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "Unknown command", res.Message)

	tasks, err := base.Store.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestCreateFromTypeAndPayload(t *testing.T) {
	base, _ := setupTestBase(t, "")
	priority := 7
	res, err := base.Pipeline.Create(context.Background(), CreateRequest{
		Type:     schemas.TaskTypeReport,
		Payload:  map[string]string{"name": "daily"},
		Priority: &priority,
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, "/report name=daily", res.Task.RawCommand)
	require.Equal(t, 7, res.Task.Priority)

	res, err = base.Pipeline.Create(context.Background(), CreateRequest{Type: "launch"})
	require.NoError(t, err)
	require.False(t, res.OK)
}

func TestSchedulingKeysAreLiftedOutOfPayload(t *testing.T) {
	base, clock := setupTestBase(t, "")
	ctx := context.Background()

	task := createTask(t, base, "/report name=weekly priority=5 in=10m")
	require.Equal(t, schemas.TaskStatusPending, task.Status)
	require.Equal(t, 5, task.Priority)
	require.Equal(t, `{"name":"weekly"}`, task.PayloadJSON)
	require.NotNil(t, task.ScheduledAt)
	require.True(t, task.ScheduledAt.Equal(clock.Now().Add(10*time.Minute)))

	promoted, err := base.Scheduler.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, promoted)

	clock.Advance(11 * time.Minute)
	promoted, err = base.Scheduler.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, promoted)

	got, err := base.Store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, schemas.TaskStatusDone, got.Status)

	promoted, err = base.Scheduler.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, promoted, "a finished task is never promoted again")
}

func TestSchedulingKeyValidation(t *testing.T) {
	base, _ := setupTestBase(t, "")
	for _, line := range []string{
		"/report name=x priority=high",
		"/report name=x at=tomorrow",
		"/report name=x in=soon",
	} {
		res, err := base.Pipeline.Create(context.Background(), CreateRequest{Command: line})
		require.NoError(t, err, line)
		require.False(t, res.OK, line)
	}
}

func TestApprovedFutureTaskWaitsForSchedule(t *testing.T) {
	base, clock := setupTestBase(t, "")
	ctx := context.Background()
	at := clock.Now().Add(time.Hour).Format(time.RFC3339)

	task := createTask(t, base, "/config key=banner value=on at="+at)
	res, err := base.Pipeline.Approve(ctx, task.ID, "owner")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, schemas.TaskStatusPending, res.Task.Status)

	clock.Advance(time.Hour)
	promoted, err := base.Scheduler.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, promoted)

	entry, err := base.Store.GetConfig(ctx, "banner")
	require.NoError(t, err)
	require.Equal(t, "on", entry.Value)
}

func TestRunNowIgnoresSchedule(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()
	task := createTask(t, base, "/social platform=x text=hi in=1h")

	res, err := base.Pipeline.RunNow(ctx, task.ID, "owner")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	require.Equal(t, schemas.TaskStatusDone, res.Task.Status)

	res, err = base.Pipeline.RunNow(ctx, task.ID, "owner")
	require.NoError(t, err)
	require.False(t, res.OK)

	gated := createTask(t, base, "/config key=a value=b")
	res, err = base.Pipeline.RunNow(ctx, gated.ID, "owner")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, res.Message, "requires approval")
}

func TestPromoteClaimsOnce(t *testing.T) {
	base, _ := setupTestBase(t, "")
	task := createTask(t, base, "/report name=race in=1h")

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := base.Pipeline.Promote(context.Background(), *task, "test")
			if err != nil {
				t.Errorf("promote: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, claims)

	started := 0
	for _, action := range logActions(t, base, task.ID) {
		if action == schemas.LogActionStarted {
			started++
		}
	}
	require.Equal(t, 1, started)
}

func TestCreateBatch(t *testing.T) {
	base, _ := setupTestBase(t, "")
	results, err := base.Pipeline.CreateBatch(context.Background(), []string{
		"/report name=a",
		"/nope",
		"/config key=x value=y",
	}, "ops")
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.True(t, results[0].OK)
	require.False(t, results[1].OK)
	require.Equal(t, schemas.TaskStatusAwaitingApproval, results[2].Task.Status)
	require.Equal(t, "ops", results[2].Task.RequestedBy)
}

func TestOperationsOnMissingTask(t *testing.T) {
	base, _ := setupTestBase(t, "")
	ctx := context.Background()

	_, err := base.Pipeline.Approve(ctx, "TASK-999999", "owner")
	require.True(t, errors.Is(err, store.ErrNotFound))
	_, err = base.Pipeline.Reject(ctx, "TASK-999999", "owner", "")
	require.True(t, errors.Is(err, store.ErrNotFound))
	_, err = base.Pipeline.RunNow(ctx, "TASK-999999", "owner")
	require.True(t, errors.Is(err, store.ErrNotFound))
	_, err = base.Pipeline.Rollback(ctx, "TASK-999999", "owner")
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestQueuedExecutionThroughMemoryBackend(t *testing.T) {
	base, _ := setupTestBase(t, "memory://")
	require.Equal(t, conf.QueueMemory, base.Dispatcher.Mode())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- base.Run(ctx) }()

	task := createTask(t, base, "/report name=queued")
	testutil.WaitFor(t, 5*time.Second, func() bool {
		got, err := base.Store.GetTask(context.Background(), task.ID)
		return err == nil && got.Status == schemas.TaskStatusDone
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("base server did not stop")
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	require.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}
