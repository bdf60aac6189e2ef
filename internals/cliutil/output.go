package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/internals/term"
)

// Printer renders API answers either as styled text or, with JSON set, as the
// raw response bodies.
type Printer struct {
	w      io.Writer
	JSON   bool
	status map[schemas.TaskStatus]lipgloss.Style
	faint  lipgloss.Style
	bold   lipgloss.Style
	ok     lipgloss.Style
	bad    lipgloss.Style
}

var statusColors = map[schemas.TaskStatus]lipgloss.Color{
	schemas.TaskStatusPending:          "3",
	schemas.TaskStatusAwaitingApproval: "5",
	schemas.TaskStatusRunning:          "4",
	schemas.TaskStatusDone:             "2",
	schemas.TaskStatusFailed:           "1",
	schemas.TaskStatusCancelled:        "8",
	schemas.TaskStatusRolledBack:       "6",
}

func NewPrinter(w io.Writer, asJSON bool) *Printer {
	renderer := lipgloss.NewRenderer(w)
	if !term.ColorEnabled(w) {
		renderer.SetColorProfile(termenv.Ascii)
	}
	p := &Printer{
		w:      w,
		JSON:   asJSON,
		status: map[schemas.TaskStatus]lipgloss.Style{},
		faint:  renderer.NewStyle().Faint(true),
		bold:   renderer.NewStyle().Bold(true),
		ok:     renderer.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		bad:    renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
	for status, color := range statusColors {
		p.status[status] = renderer.NewStyle().Foreground(color).Width(18)
	}
	return p
}

func (p *Printer) Status(status schemas.TaskStatus) string {
	style, ok := p.status[status]
	if !ok {
		return string(status)
	}
	return style.Render(string(status))
}

func (p *Printer) Value(v any) error {
	encoder := json.NewEncoder(p.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (p *Printer) Task(task schemas.TaskResponse) error {
	if p.JSON {
		return p.Value(task)
	}
	fmt.Fprintf(p.w, "%s  %s %s\n", p.bold.Render(task.ID), p.Status(task.Status), task.Type)
	fmt.Fprintf(p.w, "  command:   %s\n", task.RawCommand)
	fmt.Fprintf(p.w, "  priority:  %d\n", task.Priority)
	optional := [][2]string{
		{"requested", task.RequestedBy},
		{"scheduled", task.ScheduledAt},
		{"started", task.StartedAt},
		{"completed", task.CompletedAt},
		{"error", task.Error},
	}
	for _, field := range optional {
		if field[1] != "" {
			fmt.Fprintf(p.w, "  %-10s %s\n", field[0]+":", field[1])
		}
	}
	if len(task.Result) > 0 {
		fmt.Fprintf(p.w, "  result:    %s\n", task.Result)
	}
	if task.RetryCount > 0 {
		fmt.Fprintf(p.w, "  retries:   %d\n", task.RetryCount)
	}
	return nil
}

func (p *Printer) Tasks(list schemas.TaskListResponse) error {
	if p.JSON {
		return p.Value(list)
	}
	if len(list.Tasks) == 0 {
		fmt.Fprintln(p.w, p.faint.Render("no tasks"))
		return nil
	}
	for _, task := range list.Tasks {
		fmt.Fprintf(p.w, "%-12s %s %-17s %s\n", task.ID, p.Status(task.Status), task.Type, task.RawCommand)
	}
	return nil
}

func (p *Printer) Action(action schemas.ActionResponse) error {
	if p.JSON {
		return p.Value(action)
	}
	mark := p.ok.Render("ok")
	if !action.OK {
		mark = p.bad.Render("refused")
	}
	fmt.Fprintf(p.w, "%s %s\n", mark, action.Message)
	if action.Task != nil {
		fmt.Fprintf(p.w, "  %s %s\n", action.Task.ID, p.Status(action.Task.Status))
	}
	return nil
}

func (p *Printer) Batch(batch schemas.BatchResponse) error {
	if p.JSON {
		return p.Value(batch)
	}
	for _, result := range batch.Results {
		if err := p.Action(result); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) Logs(logs schemas.TaskLogListResponse) error {
	if p.JSON {
		return p.Value(logs)
	}
	for _, entry := range logs.Logs {
		line := fmt.Sprintf("%s  %-15s %s", p.faint.Render(entry.CreatedAt), entry.Action, entry.Actor)
		if len(entry.Detail) > 0 {
			line += "  " + string(entry.Detail)
		}
		fmt.Fprintln(p.w, line)
	}
	return nil
}

func (p *Printer) Stats(stats schemas.StatsResponse) error {
	if p.JSON {
		return p.Value(stats)
	}
	fmt.Fprintf(p.w, "%s %d\n", p.bold.Render("total"), stats.Total)
	for _, status := range schemas.TaskStatuses {
		fmt.Fprintf(p.w, "  %s %d\n", p.Status(status), stats.ByStatus[status])
	}
	for _, taskType := range schemas.TaskTypes {
		fmt.Fprintf(p.w, "  %-18s %d\n", taskType, stats.ByType[taskType])
	}
	return nil
}

func (p *Printer) Templates(list schemas.TemplateListResponse) error {
	if p.JSON {
		return p.Value(list)
	}
	for _, tmpl := range list.Templates {
		fmt.Fprintf(p.w, "%-22s %s\n", p.bold.Render(tmpl.ID), tmpl.Command)
		if tmpl.Description != "" {
			fmt.Fprintf(p.w, "  %s\n", p.faint.Render(tmpl.Description))
		}
	}
	return nil
}

func (p *Printer) Parsed(parsed schemas.ParseResponse) error {
	if p.JSON {
		return p.Value(parsed)
	}
	fmt.Fprintf(p.w, "type:     %s\n", parsed.Type)
	fmt.Fprintf(p.w, "approval: %t\n", parsed.RequiresApproval)
	for _, key := range slices.Sorted(maps.Keys(parsed.Payload)) {
		fmt.Fprintf(p.w, "  %s = %s\n", key, parsed.Payload[key])
	}
	return nil
}

func (p *Printer) Config(list schemas.ConfigListResponse) error {
	if p.JSON {
		return p.Value(list)
	}
	for _, entry := range list.Entries {
		fmt.Fprintf(p.w, "%-24s v%-3d %s %s\n", entry.Key, entry.Version, entry.Value, p.faint.Render(entry.UpdatedBy))
	}
	return nil
}

func (p *Printer) LandingPages(list schemas.LandingPageListResponse) error {
	if p.JSON {
		return p.Value(list)
	}
	for _, v := range list.Versions {
		fmt.Fprintf(p.w, "%s v%d %s  %s\n", v.Slug, v.Version, p.faint.Render(v.TaskID), v.Content)
	}
	return nil
}

func (p *Printer) Users(users []store.User) error {
	if p.JSON {
		return p.Value(users)
	}
	for _, user := range users {
		state := p.ok.Render("active")
		if !user.Active {
			state = p.faint.Render("inactive")
		}
		fmt.Fprintf(p.w, "%-16s %-20s %-10s %s\n", user.Phone, user.Name, user.Role, state)
	}
	return nil
}

// SplitAssignments turns ["k=v", ...] into a map. Entries without "=" are
// rejected.
func SplitAssignments(pairs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}
