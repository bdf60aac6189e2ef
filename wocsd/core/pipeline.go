package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Oudwins/wocs/internals/command"
	"github.com/Oudwins/wocs/internals/dispatch"
	"github.com/Oudwins/wocs/internals/executor"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
)

var ErrInvalidTransition = errors.New("invalid transition")

const (
	ActorSystem    = "system"
	ActorDashboard = "dashboard"
)

// Payload keys that steer scheduling instead of reaching the executor.
const (
	keyAt       = "at"
	keyIn       = "in"
	keyPriority = "priority"
)

// ActionResult is the {ok, message} answer of every operation that changes a
// task. Task is the task after the change when there is one.
type ActionResult struct {
	OK      bool
	Message string
	Task    *store.Task
}

func rejected(format string, args ...any) ActionResult {
	return ActionResult{OK: false, Message: fmt.Sprintf(format, args...)}
}

type CreateRequest struct {
	// Command is parsed when set. Otherwise Type and Payload describe the task.
	Command     string
	Type        schemas.TaskType
	Payload     map[string]string
	Priority    *int
	ScheduledAt *time.Time
	RequestedBy string
	AssignedTo  string
}

type PipelineOptions struct {
	Logger          *slog.Logger
	Now             func() time.Time
	DefaultPriority int
}

// Pipeline owns every task status change: creation, the approval gate,
// promotion to running, execution outcome and rollback.
type Pipeline struct {
	store           *store.Store
	executor        *executor.Executor
	dispatcher      dispatch.Dispatcher
	logger          *slog.Logger
	now             func() time.Time
	defaultPriority int
}

func NewPipeline(st *store.Store, exec *executor.Executor, opts PipelineOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		store:           st,
		executor:        exec,
		logger:          opts.Logger,
		now:             opts.Now,
		defaultPriority: opts.DefaultPriority,
	}
}

// Attach sets the dispatcher. The dispatcher is built from Execute and Hooks,
// so it can only be attached after the pipeline exists.
func (p *Pipeline) Attach(d dispatch.Dispatcher) {
	p.dispatcher = d
}

// Hooks reports queue retries and give-ups back onto the task.
func (p *Pipeline) Hooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnRetry:  p.markRetry,
		OnGiveUp: p.markGaveUp,
	}
}

// Create stores a new task. Tasks whose type needs approval wait for it;
// the rest are promoted at once when due.
func (p *Pipeline) Create(ctx context.Context, req CreateRequest) (ActionResult, error) {
	taskType := req.Type
	payload := maps.Clone(req.Payload)
	raw := strings.TrimSpace(req.Command)
	if raw != "" {
		parsed := command.Parse(raw)
		if !parsed.Known() {
			return rejected("Unknown command"), nil
		}
		taskType = parsed.Type
		payload = parsed.Payload
	} else {
		if !taskType.Valid() {
			return rejected("Unknown task type %q", taskType), nil
		}
		raw = command.Format(taskType, payload)
	}
	if payload == nil {
		payload = map[string]string{}
	}

	priority := p.defaultPriority
	var scheduledAt *time.Time
	if value, ok := payload[keyPriority]; ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return rejected("priority must be an integer, got %q", value), nil
		}
		priority = n
		delete(payload, keyPriority)
	}
	if value, ok := payload[keyAt]; ok {
		at, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return rejected("at must be an RFC3339 time, got %q", value), nil
		}
		scheduledAt = &at
		delete(payload, keyAt)
	}
	if value, ok := payload[keyIn]; ok {
		delay, err := time.ParseDuration(value)
		if err != nil || delay < 0 {
			return rejected("in must be a positive duration like 10m, got %q", value), nil
		}
		at := p.now().Add(delay)
		scheduledAt = &at
		delete(payload, keyIn)
	}
	if req.Priority != nil {
		priority = *req.Priority
	}
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return ActionResult{}, fmt.Errorf("encode payload: %w", err)
	}

	status := schemas.TaskStatusPending
	if taskType.RequiresApproval() {
		status = schemas.TaskStatusAwaitingApproval
	}

	task, err := p.store.CreateTask(ctx, store.NewTask{
		Type:        taskType,
		RawCommand:  raw,
		PayloadJSON: string(payloadJSON),
		Status:      status,
		Priority:    priority,
		RequestedBy: req.RequestedBy,
		AssignedTo:  req.AssignedTo,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		return ActionResult{}, err
	}

	actor := actorOr(req.RequestedBy, ActorDashboard)
	detail := map[string]any{"type": taskType, "status": status}
	if scheduledAt != nil {
		detail["scheduledAt"] = scheduledAt.UTC().Format(time.RFC3339)
	}
	if _, err := p.store.AppendLog(ctx, task.ID, schemas.LogActionCreated, actor, detail); err != nil {
		return ActionResult{}, err
	}
	p.logger.Info("[PIPELINE] Task created", slog.String("taskId", task.ID), slog.String("type", string(taskType)), slog.String("status", string(status)))

	if status == schemas.TaskStatusAwaitingApproval {
		return ActionResult{OK: true, Message: fmt.Sprintf("Task %s created, awaiting approval", task.ID), Task: task}, nil
	}
	if task.Due(p.now()) {
		if _, err := p.Promote(ctx, *task, actor); err != nil {
			return ActionResult{}, err
		}
	}
	return p.answer(ctx, task.ID, fmt.Sprintf("Task %s created", task.ID))
}

// CreateBatch creates one task per command line. One bad line does not stop
// the others.
func (p *Pipeline) CreateBatch(ctx context.Context, commands []string, requestedBy string) ([]ActionResult, error) {
	results := make([]ActionResult, 0, len(commands))
	for _, line := range commands {
		result, err := p.Create(ctx, CreateRequest{Command: line, RequestedBy: requestedBy})
		if err != nil {
			return results, fmt.Errorf("create %q: %w", line, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (p *Pipeline) Approve(ctx context.Context, id, actor string) (ActionResult, error) {
	if _, err := p.store.GetTask(ctx, id); err != nil {
		return ActionResult{}, err
	}
	err := p.transition(ctx, id, []schemas.TaskStatus{schemas.TaskStatusAwaitingApproval}, schemas.TaskStatusPending, store.StatusUpdate{})
	if errors.Is(err, ErrInvalidTransition) {
		return p.refused(ctx, id, "is not awaiting approval")
	}
	if err != nil {
		return ActionResult{}, err
	}
	actor = actorOr(actor, ActorDashboard)
	if _, err := p.store.AppendLog(ctx, id, schemas.LogActionApproved, actor, nil); err != nil {
		return ActionResult{}, err
	}

	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		return ActionResult{}, err
	}
	if task.Due(p.now()) {
		if _, err := p.Promote(ctx, *task, actor); err != nil {
			return ActionResult{}, err
		}
	}
	return p.answer(ctx, id, fmt.Sprintf("Task %s approved", id))
}

func (p *Pipeline) Reject(ctx context.Context, id, actor, reason string) (ActionResult, error) {
	if _, err := p.store.GetTask(ctx, id); err != nil {
		return ActionResult{}, err
	}
	update := store.StatusUpdate{}
	if reason != "" {
		update.Error = &reason
	}
	err := p.transition(ctx, id, []schemas.TaskStatus{schemas.TaskStatusAwaitingApproval}, schemas.TaskStatusCancelled, update)
	if errors.Is(err, ErrInvalidTransition) {
		return p.refused(ctx, id, "is not awaiting approval")
	}
	if err != nil {
		return ActionResult{}, err
	}
	var detail any
	if reason != "" {
		detail = map[string]string{"reason": reason}
	}
	if _, err := p.store.AppendLog(ctx, id, schemas.LogActionRejected, actorOr(actor, ActorDashboard), detail); err != nil {
		return ActionResult{}, err
	}
	return p.answer(ctx, id, fmt.Sprintf("Task %s rejected", id))
}

// RunNow promotes a pending task ignoring its schedule.
func (p *Pipeline) RunNow(ctx context.Context, id, actor string) (ActionResult, error) {
	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		return ActionResult{}, err
	}
	if task.Status == schemas.TaskStatusAwaitingApproval {
		return rejected("Task %s requires approval before it can run", id), nil
	}
	claimed, err := p.Promote(ctx, *task, actorOr(actor, ActorDashboard))
	if err != nil {
		return ActionResult{}, err
	}
	if !claimed {
		return p.refused(ctx, id, "is not pending")
	}
	return p.answer(ctx, id, fmt.Sprintf("Task %s dispatched", id))
}

// Rollback undoes the task's last config write. Success moves the task to
// rolled_back; a failed attempt leaves it failed.
func (p *Pipeline) Rollback(ctx context.Context, id, actor string) (ActionResult, error) {
	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		return ActionResult{}, err
	}
	from := []schemas.TaskStatus{schemas.TaskStatusDone, schemas.TaskStatusFailed}
	if !slices.Contains(from, task.Status) {
		return rejected("Task %s is %s; only done or failed tasks can be rolled back", id, task.Status), nil
	}
	actor = actorOr(actor, ActorDashboard)

	result := p.executor.Rollback(ctx, id, actor)
	// The config may already be restored; the bookkeeping must land even if
	// the caller went away.
	ctx = context.WithoutCancel(ctx)
	now := p.now()
	if !result.OK {
		update := store.StatusUpdate{CompletedAt: &now, Error: &result.Message}
		if err := p.transition(ctx, id, from, schemas.TaskStatusFailed, update); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return ActionResult{}, err
		}
		if _, err := p.store.AppendLog(ctx, id, schemas.LogActionFailed, actor, map[string]string{"operation": "rollback", "message": result.Message}); err != nil {
			return ActionResult{}, err
		}
		res, err := p.answer(ctx, id, result.Message)
		res.OK = false
		return res, err
	}

	resultJSON, err := json.Marshal(result.Data)
	if err != nil {
		return ActionResult{}, fmt.Errorf("encode rollback result: %w", err)
	}
	update := store.StatusUpdate{CompletedAt: &now, ResultJSON: ptr(string(resultJSON))}
	err = p.transition(ctx, id, from, schemas.TaskStatusRolledBack, update)
	if errors.Is(err, ErrInvalidTransition) {
		detail := map[string]any{"restored": result.Data, "message": "task changed status during rollback"}
		if _, err := p.store.AppendLog(ctx, id, schemas.LogActionRolledBack, actor, detail); err != nil {
			return ActionResult{}, err
		}
		p.logger.Warn("[PIPELINE] Config restored but task changed status during rollback", slog.String("taskId", id))
		return p.refused(ctx, id, "changed status during rollback")
	}
	if err != nil {
		return ActionResult{}, err
	}
	if _, err := p.store.AppendLog(ctx, id, schemas.LogActionRolledBack, actor, result.Data); err != nil {
		return ActionResult{}, err
	}
	return p.answer(ctx, id, result.Message)
}

// Promote claims a pending task for execution and hands it to the
// dispatcher. It returns false when the task was not pending anymore.
func (p *Pipeline) Promote(ctx context.Context, task store.Task, actor string) (bool, error) {
	now := p.now()
	err := p.transition(ctx, task.ID, []schemas.TaskStatus{schemas.TaskStatusPending}, schemas.TaskStatusRunning, store.StatusUpdate{StartedAt: &now})
	if errors.Is(err, ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// Once claimed the task is ours to finish. A cancelled request must not
	// leave it running.
	ctx = context.WithoutCancel(ctx)
	if _, err := p.store.AppendLog(ctx, task.ID, schemas.LogActionStarted, actorOr(actor, ActorSystem), nil); err != nil {
		return true, err
	}
	if p.dispatcher == nil {
		return true, errors.New("pipeline has no dispatcher")
	}
	if err := p.dispatcher.Dispatch(ctx, task.ID, task.Priority); err != nil {
		// The inline dispatcher already gave the task up through the hook.
		p.fail(ctx, task.ID, err.Error())
		p.logger.Error("[PIPELINE] Dispatch failed", slog.String("taskId", task.ID), slog.String("error", err.Error()))
	}
	return true, nil
}

// Execute runs a claimed task and records the outcome. It is the entry point
// of every dispatcher. A returned error means the outcome could not be
// stored and the attempt should be retried.
func (p *Pipeline) Execute(ctx context.Context, id string) error {
	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != schemas.TaskStatusRunning {
		p.logger.Warn("[PIPELINE] Skipping task that is not running", slog.String("taskId", id), slog.String("status", string(task.Status)))
		return nil
	}

	result := p.executor.Execute(ctx, *task, actorOr(task.RequestedBy, ActorSystem))
	ctx = context.WithoutCancel(ctx)
	now := p.now()
	running := []schemas.TaskStatus{schemas.TaskStatusRunning}
	detail := map[string]any{"message": result.Message}

	if !result.OK {
		err := p.transition(ctx, id, running, schemas.TaskStatusFailed, store.StatusUpdate{CompletedAt: &now, Error: &result.Message})
		if errors.Is(err, ErrInvalidTransition) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = p.store.AppendLog(ctx, id, schemas.LogActionFailed, ActorSystem, detail)
		p.logger.Info("[PIPELINE] Task failed", slog.String("taskId", id), slog.String("message", result.Message))
		return err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	err = p.transition(ctx, id, running, schemas.TaskStatusDone, store.StatusUpdate{CompletedAt: &now, ResultJSON: ptr(string(resultJSON))})
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = p.store.AppendLog(ctx, id, schemas.LogActionCompleted, ActorSystem, detail)
	p.logger.Info("[PIPELINE] Task completed", slog.String("taskId", id), slog.String("message", result.Message))
	return err
}

func (p *Pipeline) markRetry(ctx context.Context, id string, attempt int, cause error) {
	count, err := p.store.IncrementRetry(ctx, id)
	if err != nil {
		p.logger.Error("[PIPELINE] Failed to count retry", slog.String("taskId", id), slog.String("error", err.Error()))
		return
	}
	p.logger.Warn("[PIPELINE] Task will be retried", slog.String("taskId", id), slog.Int("attempt", attempt), slog.Int("retryCount", count), slog.String("error", cause.Error()))
}

func (p *Pipeline) markGaveUp(ctx context.Context, id string, cause error) {
	p.fail(ctx, id, cause.Error())
}

// fail moves a running task to failed. It is a no-op for any other status,
// so give-up paths may call it more than once.
func (p *Pipeline) fail(ctx context.Context, id, message string) {
	ctx = context.WithoutCancel(ctx)
	now := p.now()
	err := p.transition(ctx, id, []schemas.TaskStatus{schemas.TaskStatusRunning}, schemas.TaskStatusFailed, store.StatusUpdate{CompletedAt: &now, Error: &message})
	if errors.Is(err, ErrInvalidTransition) {
		return
	}
	if err == nil {
		_, err = p.store.AppendLog(ctx, id, schemas.LogActionFailed, ActorSystem, map[string]string{"message": message})
	}
	if err != nil {
		p.logger.Error("[PIPELINE] Failed to mark task failed", slog.String("taskId", id), slog.String("error", err.Error()))
	}
}

func (p *Pipeline) transition(ctx context.Context, id string, from []schemas.TaskStatus, to schemas.TaskStatus, update store.StatusUpdate) error {
	ok, err := p.store.TransitionStatus(ctx, id, from, to, update)
	if err != nil {
		return fmt.Errorf("task %s -> %s: %w", id, to, err)
	}
	if !ok {
		return fmt.Errorf("task %s -> %s: %w", id, to, ErrInvalidTransition)
	}
	return nil
}

func (p *Pipeline) refused(ctx context.Context, id, reason string) (ActionResult, error) {
	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{OK: false, Message: fmt.Sprintf("Task %s %s (status %s)", id, reason, task.Status), Task: task}, nil
}

func (p *Pipeline) answer(ctx context.Context, id, message string) (ActionResult, error) {
	task, err := p.store.GetTask(ctx, id)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{OK: true, Message: message, Task: task}, nil
}

func actorOr(actor, fallback string) string {
	if strings.TrimSpace(actor) == "" {
		return fallback
	}
	return actor
}

func ptr[T any](v T) *T {
	return &v
}
