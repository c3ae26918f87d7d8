package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wnpbridge/internal/adapter"
	"wnpbridge/internal/arbiter"
	"wnpbridge/internal/store"
)

// DefaultTabLifetime caps how long one tab connection stays open before the
// bridge asks the tab to reconnect.
const DefaultTabLifetime = 250 * time.Second

type Server struct {
	router      chi.Router
	store       *store.Store
	arbiter     *arbiter.Arbiter
	adapters    *adapter.Manager
	corsOrigin  string
	tabLifetime time.Duration
}

func NewServer(s *store.Store, opts ...Option) *Server {
	srv := &Server{
		router:      chi.NewRouter(),
		store:       s,
		tabLifetime: DefaultTabLifetime,
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

type Option func(*Server)

func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

func WithArbiter(a *arbiter.Arbiter) Option {
	return func(s *Server) { s.arbiter = a }
}

func WithAdapterManager(m *adapter.Manager) Option {
	return func(s *Server) { s.adapters = m }
}

func WithTabLifetime(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tabLifetime = d
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
