package command

import (
	"maps"
	"slices"
	"strings"

	"github.com/Oudwins/wocs/internals/schemas"
)

// Parsed is the typed intent extracted from a raw command line.
type Parsed struct {
	Type             schemas.TaskType  `json:"type"`
	Payload          map[string]string `json:"payload"`
	Raw              string            `json:"raw"`
	RequiresApproval bool              `json:"requiresApproval"`
}

func (p Parsed) Known() bool {
	return p.Type != schemas.TaskTypeUnknown
}

var keywords = map[string]schemas.TaskType{
	"config":   schemas.TaskTypeConfig,
	"landing":  schemas.TaskTypeLandingPage,
	"assign":   schemas.TaskTypeAgentAssignment,
	"schedule": schemas.TaskTypeContentSchedule,
	"report":   schemas.TaskTypeReport,
	"social":   schemas.TaskTypeSocialTask,
	"post":     schemas.TaskTypeSocialTask,
}

// Parse never fails: anything it cannot classify becomes an unknown intent
// with an empty payload.
func Parse(raw string) Parsed {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "/")

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return unknown(raw)
	}

	taskType, ok := keywords[fields[0]]
	if !ok {
		return unknown(raw)
	}

	payload := map[string]string{}
	for _, token := range fields[1:] {
		key, value, found := strings.Cut(token, "=")
		if !found || key == "" {
			continue
		}
		payload[key] = value
	}

	return Parsed{
		Type:             taskType,
		Payload:          payload,
		Raw:              raw,
		RequiresApproval: taskType.RequiresApproval(),
	}
}

func unknown(raw string) Parsed {
	return Parsed{
		Type:    schemas.TaskTypeUnknown,
		Payload: map[string]string{},
		Raw:     raw,
	}
}

// Keyword returns the canonical command keyword for a task type.
func Keyword(t schemas.TaskType) (string, bool) {
	switch t {
	case schemas.TaskTypeConfig:
		return "config", true
	case schemas.TaskTypeLandingPage:
		return "landing", true
	case schemas.TaskTypeAgentAssignment:
		return "assign", true
	case schemas.TaskTypeContentSchedule:
		return "schedule", true
	case schemas.TaskTypeReport:
		return "report", true
	case schemas.TaskTypeSocialTask:
		return "social", true
	}
	return "", false
}

// Format renders a command line that parses back into the same type and payload,
// as long as no value contains whitespace.
func Format(t schemas.TaskType, payload map[string]string) string {
	keyword, ok := Keyword(t)
	if !ok {
		return ""
	}
	parts := []string{"/" + keyword}
	for _, key := range slices.Sorted(maps.Keys(payload)) {
		parts = append(parts, key+"="+payload[key])
	}
	return strings.Join(parts, " ")
}
