package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/parsers/zjson"

	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
)

// Store is the slice of the task store the executor writes side effects to.
type Store interface {
	SetConfig(ctx context.Context, key, value, actor string) (*store.ConfigEntry, *store.ConfigEntry, error)
	CreateLandingPageVersion(ctx context.Context, slug, content, taskID string) (*store.LandingPageVersion, error)
	AppendLog(ctx context.Context, taskID string, action schemas.LogAction, actor string, detail any) (*store.LogEntry, error)
	LastLogByAction(ctx context.Context, taskID string, action schemas.LogAction) (*store.LogEntry, error)
}

// Result is the outcome of a side effect. Failures are values, not errors.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(message string, data any) Result {
	return Result{OK: true, Message: message, Data: data}
}

func failure(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// ConfigChange is the detail of a config_updated log entry. Previous is nil
// when the key did not exist before the write.
type ConfigChange struct {
	Key      string  `json:"key"`
	Previous *string `json:"previous"`
	Value    string  `json:"value"`
	Version  int     `json:"version"`
}

type Executor struct {
	store  Store
	logger *slog.Logger
}

func New(st Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: st, logger: logger}
}

// Execute performs the side effect for the task's type. It never panics and
// never returns an error: every problem is reported through Result.
func (e *Executor) Execute(ctx context.Context, task store.Task, actor string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("[EXECUTOR] Handler panicked",
				slog.String("taskId", task.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = failure("handler panicked: %v", r)
		}
	}()

	switch task.Type {
	case schemas.TaskTypeConfig:
		var payload schemas.ConfigPayload
		if r, ok := decode(task, schemas.ConfigPayloadSchema, &payload); !ok {
			return r
		}
		return e.applyConfig(ctx, task.ID, payload, actor)
	case schemas.TaskTypeLandingPage:
		var payload schemas.LandingPagePayload
		if r, ok := decode(task, schemas.LandingPagePayloadSchema, &payload); !ok {
			return r
		}
		version, err := e.store.CreateLandingPageVersion(ctx, payload.PageSlug, payload.Content, task.ID)
		if err != nil {
			return failure("landing page %s: %v", payload.PageSlug, err)
		}
		return success(fmt.Sprintf("Landing page %s published as version %d", version.Slug, version.Version), map[string]any{
			"pageSlug": version.Slug,
			"version":  version.Version,
		})
	case schemas.TaskTypeAgentAssignment:
		var payload schemas.AgentAssignmentPayload
		if r, ok := decode(task, schemas.AgentAssignmentPayloadSchema, &payload); !ok {
			return r
		}
		return echo(task, "Agent "+payload.Agent+" assigned")
	case schemas.TaskTypeContentSchedule:
		var payload schemas.ContentSchedulePayload
		if r, ok := decode(task, schemas.ContentSchedulePayloadSchema, &payload); !ok {
			return r
		}
		return echo(task, "Content scheduled")
	case schemas.TaskTypeReport:
		var payload schemas.ReportPayload
		if r, ok := decode(task, schemas.ReportPayloadSchema, &payload); !ok {
			return r
		}
		return echo(task, "Report "+payload.Name+" generated")
	case schemas.TaskTypeSocialTask:
		var payload schemas.SocialTaskPayload
		if r, ok := decode(task, schemas.SocialTaskPayloadSchema, &payload); !ok {
			return r
		}
		return echo(task, "Social task queued")
	}
	return failure("unknown task type %q", task.Type)
}

func (e *Executor) applyConfig(ctx context.Context, taskID string, payload schemas.ConfigPayload, actor string) Result {
	previous, current, err := e.store.SetConfig(ctx, payload.Key, payload.Value, actor)
	if err != nil {
		return failure("config %s: %v", payload.Key, err)
	}
	change := ConfigChange{Key: current.Key, Value: current.Value, Version: current.Version}
	if previous != nil {
		change.Previous = &previous.Value
	}
	if _, err := e.store.AppendLog(ctx, taskID, schemas.LogActionConfigUpdated, actor, change); err != nil {
		return failure("config %s updated but not logged: %v", payload.Key, err)
	}
	return success(fmt.Sprintf("Config %s set (version %d)", change.Key, change.Version), change)
}

// echo answers with the stored payload as given, including keys the typed
// payload does not declare.
func echo(task store.Task, message string) Result {
	payload := map[string]string{}
	if task.PayloadJSON == "" {
		return success(message, payload)
	}
	if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err != nil {
		return failure("invalid %s payload: %v", task.Type, err)
	}
	return success(message, payload)
}

func decode[T any](task store.Task, schema *z.StructSchema, dest *T) (Result, bool) {
	issues := schema.Parse(zjson.Decode(bytes.NewReader([]byte(task.PayloadJSON))), dest)
	if len(issues) > 0 {
		return failure("invalid %s payload: %s", task.Type, z.Issues.FlattenAndCollect(issues)), false
	}
	return Result{}, true
}
