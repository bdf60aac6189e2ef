package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Oudwins/wocs/internals/command"
	"github.com/Oudwins/wocs/internals/logbuf"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/wocsd/core"
)

const unknownCommandMessage = "Unknown command"

// HandlerWebhookVerify answers the subscription handshake. Without a
// configured verify token every handshake is refused.
func (s *Server) HandlerWebhookVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	token := s.Base.Env.VERIFY_TOKEN
	if token == "" ||
		query.Get("hub.mode") != "subscribe" ||
		subtle.ConstantTimeCompare([]byte(query.Get("hub.verify_token")), []byte(token)) != 1 {
		logbuf.FromContext(r.Context()).Warn("webhook verification refused", slog.String("mode", query.Get("hub.mode")))
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeForbidden, "Verification failed", nil), Render.Status(http.StatusForbidden))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(query.Get("hub.challenge")))
}

type inbound struct {
	user    *store.User
	message schemas.WebhookMessage
}

// HandlerWebhookMessage turns each text message into a task. Every sender is
// checked before any task is created: one unknown or inactive sender refuses
// the whole delivery. Once creation starts each message gets its own result,
// so a store failure on one message does not hide the tasks already created.
func (s *Server) HandlerWebhookMessage(w http.ResponseWriter, r *http.Request) {
	logger := logbuf.FromContext(r.Context())
	var envelope schemas.WebhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
		return
	}

	messages := envelope.TextMessages()
	if len(messages) == 0 {
		RenderJSON(w, r, schemas.ActionResponse{OK: true, Message: "No messages"})
		return
	}

	batch := make([]inbound, 0, len(messages))
	for _, message := range messages {
		phone := schemas.NormalizePhone(message.From)
		user, err := s.Base.Store.GetUserByPhone(r.Context(), phone)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !user.Active) {
			logger.Warn("webhook sender refused", slog.String("phone", phone))
			RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeForbidden, "Sender is not an active user", nil), Render.Status(http.StatusForbidden))
			return
		}
		if err != nil {
			renderError(w, r, err, "Failed to look up sender")
			return
		}
		batch = append(batch, inbound{user: user, message: message})
	}

	results := make([]schemas.ActionResponse, 0, len(batch))
	for _, item := range batch {
		body := item.message.Text.Body
		if !command.Parse(body).Known() {
			logger.Info("unknown command", slog.String("phone", item.user.Phone))
			results = append(results, schemas.ActionResponse{OK: true, Message: unknownCommandMessage})
			continue
		}
		result, err := s.Base.Pipeline.Create(r.Context(), core.CreateRequest{Command: body, RequestedBy: item.user.Phone})
		if err != nil && len(batch) == 1 {
			renderError(w, r, err, "Failed to create task")
			return
		}
		if err != nil {
			logger.Error("webhook message failed", slog.String("phone", item.user.Phone), slog.String("messageId", item.message.ID), slog.String("error", err.Error()))
			results = append(results, schemas.ActionResponse{OK: false, Message: "Failed to create task"})
			continue
		}
		if result.Task != nil {
			logger.Info("task created from webhook", slog.String("taskId", result.Task.ID), slog.String("phone", item.user.Phone))
		}
		results = append(results, actionResponse(result))
	}

	if len(results) == 1 {
		RenderJSON(w, r, results[0])
		return
	}
	RenderJSON(w, r, schemas.BatchResponse{Results: results})
}
