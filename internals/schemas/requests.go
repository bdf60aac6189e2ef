package schemas

import (
	"time"

	z "github.com/Oudwins/zog"
)

type TaskCreateRequest struct {
	Command     string            `json:"command" zog:"command"`
	Type        TaskType          `json:"type" zog:"type"`
	Payload     map[string]string `json:"payload"`
	Priority    *int              `json:"priority,omitempty"`
	ScheduledAt string            `json:"scheduledAt" zog:"scheduledAt"`
	RequestedBy string            `json:"requestedBy" zog:"requestedBy"`
}

var TaskCreateSchema = z.Struct(z.Shape{
	"Command":     z.String().Optional().Trim(),
	"Type":        z.StringLike[TaskType]().Optional().OneOf(TaskTypes, z.Message("Unknown task type")),
	"ScheduledAt": z.String().Optional().Trim().TestFunc(isRFC3339, z.Message("scheduledAt must be RFC3339")),
	"RequestedBy": z.String().Optional().Trim(),
}).TestFunc(func(valPtr any, ctx z.Ctx) bool {
	req := valPtr.(*TaskCreateRequest)
	return req.Command != "" || req.Type != ""
}, z.Message("Either command or type is required"))

type BatchCreateRequest struct {
	Commands    []string `json:"commands" zog:"commands"`
	RequestedBy string   `json:"requestedBy" zog:"requestedBy"`
}

var BatchCreateSchema = z.Struct(z.Shape{
	"Commands":    z.Slice(z.String().Trim()).Min(1).Max(100).Required(),
	"RequestedBy": z.String().Optional().Trim(),
})

type TaskRejectRequest struct {
	Reason string `json:"reason" zog:"reason"`
}

var TaskRejectSchema = z.Struct(z.Shape{
	"Reason": z.String().Optional().Trim(),
})

type VoiceParseRequest struct {
	Transcript string `json:"transcript" zog:"transcript"`
}

var VoiceParseSchema = z.Struct(z.Shape{
	"Transcript": z.String().Required().Trim(),
})

type TemplateTaskRequest struct {
	Overrides   map[string]string `json:"overrides"`
	RequestedBy string            `json:"requestedBy" zog:"requestedBy"`
}

var TemplateTaskSchema = z.Struct(z.Shape{
	"RequestedBy": z.String().Optional().Trim(),
})

func isRFC3339(valPtr *string, ctx z.Ctx) bool {
	if *valPtr == "" {
		return true
	}
	_, err := time.Parse(time.RFC3339, *valPtr)
	return err == nil
}
