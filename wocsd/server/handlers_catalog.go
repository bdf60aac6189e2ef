package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Oudwins/wocs/internals/command"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/templates"
	"github.com/Oudwins/wocs/wocsd/core"
)

func (s *Server) HandlerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Base.Store.Stats(r.Context())
	if err != nil {
		renderError(w, r, err, "Failed to compute stats")
		return
	}
	RenderJSON(w, r, schemas.StatsResponse{Total: stats.Total, ByStatus: stats.ByStatus, ByType: stats.ByType})
}

func (s *Server) HandlerListTemplates(w http.ResponseWriter, r *http.Request) {
	list := s.Base.Templates.List()
	response := schemas.TemplateListResponse{Templates: make([]schemas.TemplateResponse, 0, len(list))}
	for _, tmpl := range list {
		response.Templates = append(response.Templates, templateResponse(tmpl))
	}
	RenderJSON(w, r, response)
}

func (s *Server) HandlerGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.Base.Templates.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderTemplateError(w, r, err)
		return
	}
	RenderJSON(w, r, templateResponse(tmpl))
}

func (s *Server) HandlerCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var request schemas.TemplateTaskRequest
	if !decodeBody(w, r, &request, schemas.TemplateTaskSchema, true) {
		return
	}
	taskType, payload, err := s.Base.Templates.Render(chi.URLParam(r, "id"), request.Overrides)
	if err != nil {
		renderTemplateError(w, r, err)
		return
	}
	requestedBy := request.RequestedBy
	if requestedBy == "" {
		requestedBy = actor(r)
	}
	result, err := s.Base.Pipeline.Create(r.Context(), core.CreateRequest{Type: taskType, Payload: payload, RequestedBy: requestedBy})
	if err != nil {
		renderError(w, r, err, "Failed to create task")
		return
	}
	renderCreated(w, r, result)
}

func renderTemplateError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, templates.ErrUnknownTemplate) {
		RenderJSON(w, r, JsonResponseError(JsonResponseErrorCodeNotFound, err.Error(), nil), Render.Status(http.StatusNotFound))
		return
	}
	renderError(w, r, err, "Failed to render template")
}

func (s *Server) HandlerVoiceParse(w http.ResponseWriter, r *http.Request) {
	var request schemas.VoiceParseRequest
	if !decodeBody(w, r, &request, schemas.VoiceParseSchema, false) {
		return
	}
	parsed := command.ParseVoice(request.Transcript)
	RenderJSON(w, r, schemas.ParseResponse{
		Type:             parsed.Type,
		Payload:          parsed.Payload,
		Raw:              parsed.Raw,
		RequiresApproval: parsed.RequiresApproval,
	})
}

func (s *Server) HandlerListConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Base.Store.ListConfig(r.Context())
	if err != nil {
		renderError(w, r, err, "Failed to list config")
		return
	}
	response := schemas.ConfigListResponse{Entries: make([]schemas.ConfigEntryResponse, 0, len(entries))}
	for _, entry := range entries {
		response.Entries = append(response.Entries, schemas.ConfigEntryResponse{
			Key:       entry.Key,
			Value:     entry.Value,
			Version:   entry.Version,
			UpdatedBy: entry.UpdatedBy,
			UpdatedAt: entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	RenderJSON(w, r, response)
}

func (s *Server) HandlerLandingPageVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Base.Store.ListLandingPageVersions(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		renderError(w, r, err, "Failed to list landing page versions")
		return
	}
	response := schemas.LandingPageListResponse{Versions: make([]schemas.LandingPageVersionResponse, 0, len(versions))}
	for _, v := range versions {
		response.Versions = append(response.Versions, schemas.LandingPageVersionResponse{
			ID:        v.ID,
			Slug:      v.Slug,
			Version:   v.Version,
			Content:   v.Content,
			TaskID:    v.TaskID,
			CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	RenderJSON(w, r, response)
}
