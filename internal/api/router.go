package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Post("/ingest", s.handleIngest)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/latest", s.handleLatest)
		r.Get("/history", s.handleHistory)
		r.Get("/export", s.handleExport)
		r.Get("/recipients", s.handleGetRecipients)
		r.Post("/recipients", s.handleSetRecipients)
	})

	if s.metricsPath != "" && s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())
	}
	return r
}
