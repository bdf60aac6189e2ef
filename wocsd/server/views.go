package server

import (
	"encoding/json"
	"time"

	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/internals/templates"
	"github.com/Oudwins/wocs/wocsd/core"
)

func taskResponse(task *store.Task) schemas.TaskResponse {
	return schemas.TaskResponse{
		ID:          task.ID,
		Type:        task.Type,
		RawCommand:  task.RawCommand,
		Payload:     rawJSON(task.PayloadJSON),
		Status:      task.Status,
		Priority:    task.Priority,
		RequestedBy: task.RequestedBy,
		AssignedTo:  task.AssignedTo,
		ScheduledAt: formatOptional(task.ScheduledAt),
		StartedAt:   formatOptional(task.StartedAt),
		CompletedAt: formatOptional(task.CompletedAt),
		Error:       task.Error,
		Result:      rawJSON(task.ResultJSON),
		RetryCount:  task.RetryCount,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func taskLogResponse(entry store.LogEntry) schemas.TaskLogResponse {
	return schemas.TaskLogResponse{
		ID:        entry.ID,
		TaskID:    entry.TaskID,
		Action:    entry.Action,
		Actor:     entry.Actor,
		Detail:    rawJSON(entry.DetailJSON),
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func actionResponse(result core.ActionResult) schemas.ActionResponse {
	response := schemas.ActionResponse{OK: result.OK, Message: result.Message}
	if result.Task != nil {
		task := taskResponse(result.Task)
		response.Task = &task
	}
	return response
}

func templateResponse(tmpl templates.Template) schemas.TemplateResponse {
	return schemas.TemplateResponse{
		ID:          tmpl.ID,
		Name:        tmpl.Name,
		Description: tmpl.Description,
		Command:     tmpl.Command(),
	}
}

// rawJSON passes stored JSON text through untouched. Text that is not valid
// JSON is dropped rather than breaking the whole response.
func rawJSON(text string) json.RawMessage {
	if text == "" || !json.Valid([]byte(text)) {
		return nil
	}
	return json.RawMessage(text)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
