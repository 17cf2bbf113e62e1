package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/store"
)

// Server is the recall HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Manager
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server with the given store, engine and version string.
func New(db *store.DB, eng *engine.Manager, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
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

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/overview", s.handleOverview)
			r.Get("/context", s.handleContext)
			r.Post("/turns", s.handleRecordTurn)
			r.Post("/notes", s.handleAddNote)
			r.Post("/pins", s.handleAddPin)
			r.Put("/name", s.handleSetName)
			r.Put("/extras", s.handleSetExtras)
			r.Post("/reset", s.handleReset)
			r.Post("/history/prune", s.handlePruneHistory)
			r.Delete("/memory/date", s.handleDeleteByDate)
			r.Delete("/memory/recent", s.handleDeleteRecent)
			r.Delete("/memory/tag", s.handleDeleteByTag)
			r.Delete("/memory/item", s.handleDeleteItem)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
