package schemas

import (
	"regexp"

	z "github.com/Oudwins/zog"
)

// Task payloads travel as flat string maps. Each task type decodes its map into
// one of the structs below and validates it before the side effect runs.

type ConfigPayload struct {
	Key   string `json:"key" zog:"key"`
	Value string `json:"value" zog:"value"`
}

var ConfigPayloadSchema = z.Struct(z.Shape{
	"Key":   z.String().Required(z.Message("key is required")).Trim().Match(configKeyRegex, z.Message("key must be alphanumeric with . _ -")),
	"Value": z.String().Required(z.Message("value is required")),
})

type LandingPagePayload struct {
	PageSlug string `json:"pageSlug" zog:"pageSlug"`
	Content  string `json:"content" zog:"content"`
}

var LandingPagePayloadSchema = z.Struct(z.Shape{
	"PageSlug": z.String().Required(z.Message("pageSlug is required")).Trim().Match(slugRegex, z.Message("pageSlug must be lowercase letters, digits and dashes")),
	"Content":  z.String().Required(z.Message("content is required")),
})

type AgentAssignmentPayload struct {
	Agent string `json:"agent" zog:"agent"`
	Task  string `json:"task" zog:"task"`
}

var AgentAssignmentPayloadSchema = z.Struct(z.Shape{
	"Agent": z.String().Required(z.Message("agent is required")).Trim(),
	"Task":  z.String().Optional().Trim(),
})

type ContentSchedulePayload struct {
	Channel string `json:"channel" zog:"channel"`
	Content string `json:"content" zog:"content"`
}

var ContentSchedulePayloadSchema = z.Struct(z.Shape{
	"Channel": z.String().Optional().Trim(),
	"Content": z.String().Optional().Trim(),
})

type ReportPayload struct {
	Name   string `json:"name" zog:"name"`
	Period string `json:"period" zog:"period"`
}

var ReportPayloadSchema = z.Struct(z.Shape{
	"Name":   z.String().Default("daily").Trim(),
	"Period": z.String().Optional().Trim(),
})

type SocialTaskPayload struct {
	Platform string `json:"platform" zog:"platform"`
	Text     string `json:"text" zog:"text"`
}

var SocialTaskPayloadSchema = z.Struct(z.Shape{
	"Platform": z.String().Optional().Trim(),
	"Text":     z.String().Optional().Trim(),
})

var configKeyRegex = regexp.MustCompile(`^[A-Za-z0-9._\-]+$`)
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
