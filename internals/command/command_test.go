package command

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/Oudwins/wocs/internals/schemas"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     schemas.TaskType
		payload  map[string]string
		approval bool
	}{
		{name: "landing page", raw: "/landing pageSlug=promo content=hello", want: schemas.TaskTypeLandingPage, payload: map[string]string{"pageSlug": "promo", "content": "hello"}, approval: true},
		{name: "config", raw: "/config key=theme value=dark", want: schemas.TaskTypeConfig, payload: map[string]string{"key": "theme", "value": "dark"}, approval: true},
		{name: "assign without equals drops tokens", raw: "/assign agent bob", want: schemas.TaskTypeAgentAssignment, payload: map[string]string{}},
		{name: "assign", raw: "/assign agent=bob", want: schemas.TaskTypeAgentAssignment, payload: map[string]string{"agent": "bob"}},
		{name: "no slash", raw: "report name=weekly", want: schemas.TaskTypeReport, payload: map[string]string{"name": "weekly"}},
		{name: "schedule", raw: "  /schedule channel=ig  ", want: schemas.TaskTypeContentSchedule, payload: map[string]string{"channel": "ig"}},
		{name: "social alias", raw: "/post platform=x text=hi", want: schemas.TaskTypeSocialTask, payload: map[string]string{"platform": "x", "text": "hi"}},
		{name: "value keeps later equals", raw: "/config key=q value=a=b", want: schemas.TaskTypeConfig, payload: map[string]string{"key": "q", "value": "a=b"}, approval: true},
		{name: "empty key dropped", raw: "/report =x name=", want: schemas.TaskTypeReport, payload: map[string]string{"name": ""}},
		{name: "unknown keyword", raw: "/frobnicate x=1", want: schemas.TaskTypeUnknown, payload: map[string]string{}},
		{name: "keyword is case sensitive", raw: "/Landing pageSlug=promo", want: schemas.TaskTypeUnknown, payload: map[string]string{}},
		{name: "empty", raw: "", want: schemas.TaskTypeUnknown, payload: map[string]string{}},
		{name: "only slash", raw: "/", want: schemas.TaskTypeUnknown, payload: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			require.Equal(t, tt.want, got.Type)
			require.Equal(t, tt.approval, got.RequiresApproval)
			require.Equal(t, tt.raw, got.Raw)
			if diff := cmp.Diff(tt.payload, got.Payload); diff != "" {
				t.Fatalf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseApprovalMatchesTypeTable(t *testing.T) {
	for keyword, taskType := range keywords {
		got := Parse("/" + keyword)
		require.Equal(t, taskType, got.Type)
		require.Equal(t, taskType.RequiresApproval(), got.RequiresApproval, keyword)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	payload := map[string]string{"pageSlug": "promo", "content": "hello"}
	line := Format(schemas.TaskTypeLandingPage, payload)
	require.Equal(t, "/landing content=hello pageSlug=promo", line)

	parsed := Parse(line)
	require.Equal(t, schemas.TaskTypeLandingPage, parsed.Type)
	require.Equal(t, payload, parsed.Payload)

	require.Empty(t, Format(schemas.TaskTypeUnknown, payload))
}

func TestNormalizeVoice(t *testing.T) {
	tests := map[string]string{
		"Landing pageSlug equals promo content equals hello.": "/landing pageSlug=promo content=hello",
		"slash assign agent equals bob":                       "/assign agent=bob",
		"Report":                                              "/report",
		"/config key = theme value = dark":                    "/config key=theme value=dark",
		"   ":                                                 "",
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizeVoice(in), in)
	}
}

func TestParseVoiceKeepsTranscript(t *testing.T) {
	got := ParseVoice("Assign agent equals bob.")
	require.Equal(t, schemas.TaskTypeAgentAssignment, got.Type)
	require.Equal(t, map[string]string{"agent": "bob"}, got.Payload)
	require.Equal(t, "Assign agent equals bob.", got.Raw)
}
