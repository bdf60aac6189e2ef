package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.MiddlewareLogger)
	r.Get("/version", s.HandlerVersion)
	r.Get("/healthz", s.HandlerHealth)

	r.Get("/webhook", s.HandlerWebhookVerify)
	r.Post("/webhook", s.HandlerWebhookMessage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", s.HandlerListTasks)
		r.Post("/tasks", s.HandlerCreateTask)
		r.Post("/tasks/batch", s.HandlerCreateBatch)
		r.Get("/tasks/{id}", s.HandlerGetTask)
		r.Get("/tasks/{id}/logs", s.HandlerTaskLogs)
		r.Post("/tasks/{id}/approve", s.HandlerApproveTask)
		r.Post("/tasks/{id}/reject", s.HandlerRejectTask)
		r.Post("/tasks/{id}/run", s.HandlerRunTask)
		r.Post("/tasks/{id}/rollback", s.HandlerRollbackTask)

		r.Get("/stats", s.HandlerStats)
		r.Get("/templates", s.HandlerListTemplates)
		r.Get("/templates/{id}", s.HandlerGetTemplate)
		r.Post("/templates/{id}/tasks", s.HandlerCreateFromTemplate)
		r.Post("/voice/parse", s.HandlerVoiceParse)
		r.Get("/config", s.HandlerListConfig)
		r.Get("/landing-pages/{slug}", s.HandlerLandingPageVersions)
	})
	return r
}
