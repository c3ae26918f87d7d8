package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/ws/tab/{token}", s.handleTabSocket)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(limitBody)
		r.Use(jsonContentType)
		r.Use(corsMiddleware(s.corsOrigin))

		r.Get("/now-playing", s.handleNowPlaying)
		r.Get("/now-playing/sse", s.handleNowPlayingSSE)
		r.Post("/now-playing/command", s.handleCommand)
		r.Get("/tabs", s.handleListTabs)

		r.Get("/adapters", s.handleListAdapters)
		r.Post("/adapters", s.handleCreateAdapter)
		r.Get("/adapters/{id}", s.handleGetAdapter)
		r.Put("/adapters/{id}", s.handleUpdateAdapter)
		r.Delete("/adapters/{id}", s.handleDeleteAdapter)
		r.Post("/adapters/{id}/connect", s.handleConnectAdapter)
		r.Post("/adapters/{id}/disconnect", s.handleDisconnectAdapter)

		r.Get("/settings/sites", s.handleGetSitePolicy)
		r.Put("/settings/sites", s.handleUpdateSitePolicy)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
