package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/wocsd/core"
)

const maxListLimit = 500

func (s *Server) HandlerListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.TaskFilter{
		Status: schemas.TaskStatus(query.Get("status")),
		Type:   schemas.TaskType(query.Get("type")),
	}
	errs := map[string][]string{}
	if filter.Status != "" && !filter.Status.Valid() {
		errs["status"] = []string{"unknown status"}
	}
	if filter.Type != "" && !filter.Type.Valid() {
		errs["type"] = []string{"unknown type"}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			errs["limit"] = []string{"limit must be between 1 and 500"}
		}
		filter.Limit = limit
	}
	if len(errs) > 0 {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "Invalid query", errs), Render.Status(http.StatusBadRequest))
		return
	}

	tasks, err := s.Base.Store.ListTasks(r.Context(), filter)
	if err != nil {
		renderError(w, r, err, "Failed to list tasks")
		return
	}
	response := schemas.TaskListResponse{Tasks: make([]schemas.TaskResponse, 0, len(tasks))}
	for i := range tasks {
		response.Tasks = append(response.Tasks, taskResponse(&tasks[i]))
	}
	RenderJSON(w, r, response)
}

func (s *Server) HandlerGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Base.Store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err, "Failed to read task")
		return
	}
	RenderJSON(w, r, taskResponse(task))
}

func (s *Server) HandlerTaskLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Base.Store.GetTask(r.Context(), id); err != nil {
		renderError(w, r, err, "Failed to read task")
		return
	}
	entries, err := s.Base.Store.ListLogs(r.Context(), id)
	if err != nil {
		renderError(w, r, err, "Failed to read task logs")
		return
	}
	response := schemas.TaskLogListResponse{Logs: make([]schemas.TaskLogResponse, 0, len(entries))}
	for _, entry := range entries {
		response.Logs = append(response.Logs, taskLogResponse(entry))
	}
	RenderJSON(w, r, response)
}

func (s *Server) HandlerCreateTask(w http.ResponseWriter, r *http.Request) {
	var request schemas.TaskCreateRequest
	if !decodeBody(w, r, &request, schemas.TaskCreateSchema, false) {
		return
	}

	create := core.CreateRequest{
		Command:     request.Command,
		Type:        request.Type,
		Payload:     request.Payload,
		Priority:    request.Priority,
		RequestedBy: request.RequestedBy,
	}
	if create.RequestedBy == "" {
		create.RequestedBy = actor(r)
	}
	if request.ScheduledAt != "" {
		at, _ := time.Parse(time.RFC3339, request.ScheduledAt)
		create.ScheduledAt = &at
	}

	result, err := s.Base.Pipeline.Create(r.Context(), create)
	if err != nil {
		renderError(w, r, err, "Failed to create task")
		return
	}
	renderCreated(w, r, result)
}

func (s *Server) HandlerCreateBatch(w http.ResponseWriter, r *http.Request) {
	var request schemas.BatchCreateRequest
	if !decodeBody(w, r, &request, schemas.BatchCreateSchema, false) {
		return
	}
	requestedBy := request.RequestedBy
	if requestedBy == "" {
		requestedBy = actor(r)
	}

	results, err := s.Base.Pipeline.CreateBatch(r.Context(), request.Commands, requestedBy)
	if err != nil {
		renderError(w, r, err, "Failed to create tasks")
		return
	}
	response := schemas.BatchResponse{Results: make([]schemas.ActionResponse, 0, len(results))}
	for _, result := range results {
		response.Results = append(response.Results, actionResponse(result))
	}
	RenderJSON(w, r, response)
}

func (s *Server) HandlerApproveTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.Base.Pipeline.Approve(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		renderError(w, r, err, "Failed to approve task")
		return
	}
	RenderJSON(w, r, actionResponse(result))
}

func (s *Server) HandlerRejectTask(w http.ResponseWriter, r *http.Request) {
	var request schemas.TaskRejectRequest
	if !decodeBody(w, r, &request, schemas.TaskRejectSchema, true) {
		return
	}
	result, err := s.Base.Pipeline.Reject(r.Context(), chi.URLParam(r, "id"), actor(r), request.Reason)
	if err != nil {
		renderError(w, r, err, "Failed to reject task")
		return
	}
	RenderJSON(w, r, actionResponse(result))
}

func (s *Server) HandlerRunTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.Base.Pipeline.RunNow(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		renderError(w, r, err, "Failed to run task")
		return
	}
	RenderJSON(w, r, actionResponse(result))
}

func (s *Server) HandlerRollbackTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.Base.Pipeline.Rollback(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		renderError(w, r, err, "Failed to roll back task")
		return
	}
	RenderJSON(w, r, actionResponse(result))
}

// renderCreated answers 201 when a task was stored and 422 when the command
// was refused before any task existed.
func renderCreated(w http.ResponseWriter, r *http.Request, result core.ActionResult) {
	status := http.StatusCreated
	if !result.OK {
		status = http.StatusUnprocessableEntity
	}
	RenderJSON(w, r, actionResponse(result), Render.Status(status))
}
