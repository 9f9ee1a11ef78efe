package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter wires the middleware chain and the /api/v1 routes.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID, s.withAccessLog, s.withRecovery, s.withBodyLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/history", s.handleListHistory)

		r.Route("/bridges", func(r chi.Router) {
			r.Get("/", s.handleListBridges)

			r.Route("/{bridge}", func(r chi.Router) {
				r.Get("/", s.handleGetBridge)
				r.Get("/result", s.handleGetResult)
				r.Get("/history", s.handleListHistory)
				r.Post("/sync", s.handleSync)
			})
		})
	})

	return r
}

// handleHealth reports liveness and how many bridges are loaded.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"bridges": len(s.sync.Bridges()),
	})
}
