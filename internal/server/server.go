package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quietfold/retain/internal/config"
	"github.com/quietfold/retain/internal/engine"
	"github.com/quietfold/retain/internal/metrics"
	"github.com/quietfold/retain/internal/store"
)

// Server is the retain HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	metrics *metrics.Metrics
	cfg     config.Config
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server.
func New(db *store.DB, eng *engine.Engine, m *metrics.Metrics, cfg config.Config, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		metrics: m,
		cfg:     cfg,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Post("/items", s.handleCreateItem)
		r.Get("/items/{itemID}", s.handleGetItem)
		r.Post("/items/{itemID}/touch", s.handleTouchItem)
		r.Post("/items/{itemID}/reclassify", s.handleReclassify)

		r.Post("/maintenance/run", s.handleRunMaintenance)
	})

	if s.metrics != nil {
		r.Method("GET", "/metrics", s.metrics.Handler())
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
