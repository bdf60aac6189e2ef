package schemas

import (
	"encoding/json"
	"slices"
)

type TaskStatus string

const (
	TaskStatusPending          TaskStatus = "pending"
	TaskStatusAwaitingApproval TaskStatus = "awaiting_approval"
	TaskStatusRunning          TaskStatus = "running"
	TaskStatusDone             TaskStatus = "done"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCancelled        TaskStatus = "cancelled"
	TaskStatusRolledBack       TaskStatus = "rolled_back"
)

var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusAwaitingApproval,
	TaskStatusRunning,
	TaskStatusDone,
	TaskStatusFailed,
	TaskStatusCancelled,
	TaskStatusRolledBack,
}

// Terminal reports whether no further transition leaves the status.
// Failed is not terminal: a rollback may still be attempted.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusCancelled, TaskStatusRolledBack:
		return true
	}
	return false
}

func (s TaskStatus) Valid() bool {
	return slices.Contains(TaskStatuses, s)
}

type TaskType string

const (
	TaskTypeUnknown         TaskType = "unknown"
	TaskTypeConfig          TaskType = "config"
	TaskTypeLandingPage     TaskType = "landing_page"
	TaskTypeAgentAssignment TaskType = "agent_assignment"
	TaskTypeContentSchedule TaskType = "content_schedule"
	TaskTypeReport          TaskType = "report"
	TaskTypeSocialTask      TaskType = "social_task"
)

var TaskTypes = []TaskType{
	TaskTypeConfig,
	TaskTypeLandingPage,
	TaskTypeAgentAssignment,
	TaskTypeContentSchedule,
	TaskTypeReport,
	TaskTypeSocialTask,
}

func (t TaskType) Valid() bool {
	return slices.Contains(TaskTypes, t)
}

// RequiresApproval is a static property of the task type.
func (t TaskType) RequiresApproval() bool {
	switch t {
	case TaskTypeConfig, TaskTypeLandingPage:
		return true
	}
	return false
}

type LogAction string

const (
	LogActionCreated       LogAction = "created"
	LogActionApproved      LogAction = "approved"
	LogActionRejected      LogAction = "rejected"
	LogActionStarted       LogAction = "started"
	LogActionCompleted     LogAction = "completed"
	LogActionFailed        LogAction = "failed"
	LogActionConfigUpdated LogAction = "config_updated"
	LogActionRolledBack    LogAction = "rolled_back"
)

type TaskResponse struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	RawCommand  string          `json:"rawCommand"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      TaskStatus      `json:"status"`
	Priority    int             `json:"priority"`
	RequestedBy string          `json:"requestedBy,omitempty"`
	AssignedTo  string          `json:"assignedTo,omitempty"`
	ScheduledAt string          `json:"scheduledAt,omitempty"`
	StartedAt   string          `json:"startedAt,omitempty"`
	CompletedAt string          `json:"completedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	RetryCount  int             `json:"retryCount"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

type TaskLogResponse struct {
	ID        int64           `json:"id"`
	TaskID    string          `json:"taskId"`
	Action    LogAction       `json:"action"`
	Actor     string          `json:"actor,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

type TaskLogListResponse struct {
	Logs []TaskLogResponse `json:"logs"`
}

// ActionResponse is the {ok, message} envelope every dispatch operation answers with.
type ActionResponse struct {
	OK      bool          `json:"ok"`
	Message string        `json:"message"`
	Task    *TaskResponse `json:"task,omitempty"`
}

type BatchResponse struct {
	Results []ActionResponse `json:"results"`
}

type ParseResponse struct {
	Type             TaskType          `json:"type"`
	Payload          map[string]string `json:"payload"`
	Raw              string            `json:"raw"`
	RequiresApproval bool              `json:"requiresApproval"`
}

type StatsResponse struct {
	Total    int                `json:"total"`
	ByStatus map[TaskStatus]int `json:"byStatus"`
	ByType   map[TaskType]int   `json:"byType"`
}

type ConfigEntryResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Version   int    `json:"version"`
	UpdatedBy string `json:"updatedBy,omitempty"`
	UpdatedAt string `json:"updatedAt"`
}

type ConfigListResponse struct {
	Entries []ConfigEntryResponse `json:"entries"`
}

type LandingPageVersionResponse struct {
	ID        int64  `json:"id"`
	Slug      string `json:"slug"`
	Version   int    `json:"version"`
	Content   string `json:"content"`
	TaskID    string `json:"taskId,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type LandingPageListResponse struct {
	Versions []LandingPageVersionResponse `json:"versions"`
}

type TemplateResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Command     string `json:"command"`
}

type TemplateListResponse struct {
	Templates []TemplateResponse `json:"templates"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Queue   string `json:"queue"`
	Version string `json:"version"`
}
