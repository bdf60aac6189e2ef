package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	z "github.com/Oudwins/zog"

	"github.com/Oudwins/wocs/internals/logbuf"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/internals/version"
	"github.com/Oudwins/wocs/wocsd/core"
)

const actorHeader = "X-Actor"

func (s *Server) HandlerVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(version.Version()))
}

func (s *Server) HandlerHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Base.Store.DB().PingContext(r.Context()); err != nil {
		logbuf.FromContext(r.Context()).Error("database ping failed", slog.String("error", err.Error()))
		RenderJSON(w, r, schemas.HealthResponse{Status: "unavailable", Queue: string(s.Base.Dispatcher.Mode()), Version: version.Version()}, Render.Status(http.StatusServiceUnavailable))
		return
	}
	RenderJSON(w, r, schemas.HealthResponse{Status: "ok", Queue: string(s.Base.Dispatcher.Mode()), Version: version.Version()})
}

// actor names who triggered a dashboard action.
func actor(r *http.Request) string {
	if value := strings.TrimSpace(r.Header.Get(actorHeader)); value != "" {
		return value
	}
	return core.ActorDashboard
}

// decodeBody decodes a JSON body and validates it. An empty body is allowed
// when optional is set. It renders the error response itself and reports
// whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any, schema *z.StructSchema, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err != nil && !(optional && errors.Is(err, io.EOF)) {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeInvalidJson, "Invalid JSON", nil), Render.Status(http.StatusBadRequest))
		return false
	}
	if schema == nil {
		return true
	}
	if issues := schema.Validate(dest); len(issues) > 0 {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeValidationFailed, "Schema validation failed", z.Issues.Flatten(issues)), Render.Status(http.StatusBadRequest))
		return false
	}
	return true
}

// renderError maps store and pipeline errors to HTTP responses.
func renderError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, message+": not found", nil), Render.Status(http.StatusNotFound))
		return
	}
	logbuf.FromContext(r.Context()).Error(message, slog.String("error", err.Error()))
	RenderJSON(w, r, JsonResponseError(JsonResponseErroCodeInternal, message, nil), Render.Status(http.StatusInternalServerError))
}
