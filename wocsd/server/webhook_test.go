package server

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
)

func TestWebhookVerify(t *testing.T) {
	s := newTestServer(t)

	query := url.Values{}
	query.Set("hub.mode", "subscribe")
	query.Set("hub.verify_token", testVerifyToken)
	query.Set("hub.challenge", "12345")
	rec := doRequest(t, s, http.MethodGet, "/webhook?"+query.Encode(), nil)
	expectStatus(t, rec, http.StatusOK)
	require.Equal(t, "12345", rec.Body.String())

	query.Set("hub.verify_token", "wrong")
	rec = doRequest(t, s, http.MethodGet, "/webhook?"+query.Encode(), nil)
	expectStatus(t, rec, http.StatusForbidden)

	query.Set("hub.verify_token", testVerifyToken)
	query.Set("hub.mode", "unsubscribe")
	rec = doRequest(t, s, http.MethodGet, "/webhook?"+query.Encode(), nil)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestWebhookVerifyWithoutTokenConfigured(t *testing.T) {
	s := newTestServer(t)
	s.Base.Env.VERIFY_TOKEN = ""
	rec := doRequest(t, s, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestWebhookRejectsUnknownAndInactiveSenders(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	rec := doRequest(t, s, http.MethodPost, "/webhook", webhookBody("15550001111", "/report name=daily"))
	expectStatus(t, rec, http.StatusForbidden)

	_, err := s.Base.Store.CreateUser(ctx, "Ana", "15550001111", "")
	require.NoError(t, err)
	require.NoError(t, s.Base.Store.SetUserActive(ctx, "15550001111", false))
	rec = doRequest(t, s, http.MethodPost, "/webhook", webhookBody("+1 555-000-1111", "/report name=daily"))
	expectStatus(t, rec, http.StatusForbidden)

	tasks, err := s.Base.Store.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestWebhookCreatesTaskForKnownSender(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.Base.Store.CreateUser(ctx, "Ana", "15550001111", "")
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/webhook", webhookBody("+1 (555) 000-1111", "/config key=theme value=dark"))
	expectStatus(t, rec, http.StatusOK)
	got := decode[schemas.ActionResponse](t, rec)
	require.True(t, got.OK)
	require.NotNil(t, got.Task)
	require.Equal(t, schemas.TaskStatusAwaitingApproval, got.Task.Status)
	require.Equal(t, "15550001111", got.Task.RequestedBy)

	entries, err := s.Base.Store.ListLogs(ctx, got.Task.ID)
	require.NoError(t, err)
	require.Equal(t, "15550001111", entries[0].Actor)
}

func TestWebhookReportsEachMessageWhenOneFails(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.Base.Store.CreateUser(ctx, "Ana", "15550001111", "")
	require.NoError(t, err)
	_, err = s.Base.Store.DB().ExecContext(ctx, `CREATE TRIGGER refuse_broken BEFORE INSERT ON tasks
WHEN NEW.raw_command LIKE '%broken%'
BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/webhook", webhookBody("15550001111",
		"/assign agent=bob task=inbox",
		"/assign agent=broken task=inbox",
		"/report name=daily",
	))
	expectStatus(t, rec, http.StatusOK)
	batch := decode[schemas.BatchResponse](t, rec)
	require.Len(t, batch.Results, 3)
	require.True(t, batch.Results[0].OK)
	require.NotNil(t, batch.Results[0].Task)
	require.False(t, batch.Results[1].OK)
	require.Nil(t, batch.Results[1].Task)
	require.True(t, batch.Results[2].OK)
	require.NotNil(t, batch.Results[2].Task)

	tasks, err := s.Base.Store.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestWebhookUnknownCommand(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.Base.Store.CreateUser(ctx, "Ana", "15550001111", "")
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/webhook", webhookBody("15550001111", "/frobnicate x=1"))
	expectStatus(t, rec, http.StatusOK)
	got := decode[schemas.ActionResponse](t, rec)
	require.True(t, got.OK)
	require.Equal(t, "Unknown command", got.Message)
	require.Nil(t, got.Task)

	tasks, err := s.Base.Store.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestWebhookWithoutMessagesAndBadJSON(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/webhook", map[string]any{"object": "whatsapp_business_account"})
	expectStatus(t, rec, http.StatusOK)
	require.True(t, decode[schemas.ActionResponse](t, rec).OK)

	rec = doRequest(t, s, http.MethodPost, "/webhook", "{not json")
	expectStatus(t, rec, http.StatusBadRequest)
}
