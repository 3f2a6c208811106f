// Package api is the HTTP shell around the editing engine: editor sessions,
// document pages, uploads and catalog stats.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/planmark/internal/catalog"
	"github.com/dgallion1/planmark/internal/config"
	"github.com/dgallion1/planmark/internal/editor"
	"github.com/dgallion1/planmark/internal/ingest"
)

// Server is the HTTP API server for planmark.
type Server struct {
	router       chi.Router
	sessions     *editor.Registry
	docs         catalog.Documents
	orchestrator *ingest.Orchestrator
	stats        *catalog.LatencyStats
	mailboxes    *mailboxes
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. stats may be nil when
// the catalog is not remote.
func NewServer(sessions *editor.Registry, docs catalog.Documents, orch *ingest.Orchestrator, stats *catalog.LatencyStats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions:     sessions,
		docs:         docs,
		orchestrator: orch,
		stats:        stats,
		mailboxes:    newMailboxes(),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.PlanmarkAPIKey, s.log))

		r.Post("/api/sessions", s.handleCreateSession)
		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/page", s.handleLoadPage)

			r.Post("/arm", s.handleArm)
			r.Post("/pointer/down", s.handlePointerDown)
			r.Post("/pointer/move", s.handlePointerMove)
			r.Post("/pointer/up", s.handlePointerUp)
			r.Post("/escape", s.handleEscape)
			r.Post("/cancel", s.handleCancel)
			r.Post("/modal", s.handleModal)
			r.Post("/commit", s.handleCommit)

			r.Post("/viewport/zoom", s.handleZoom)
			r.Post("/viewport/pan", s.handlePan)
			r.Post("/viewport/fit", s.handleFit)

			r.Put("/selection", s.handleSelect)
			r.Get("/children", s.handleChildren)

			r.Patch("/annotations/{annotationID}/metadata", s.handleUpdateMetadata)
			r.Delete("/annotations/{annotationID}", s.handleDeleteAnnotation)

			r.Get("/errors", s.handleErrors)
			r.Delete("/errors", s.handleClearErrors)
			r.Get("/notifications", s.handleNotifications)
			r.Get("/overlay.svg", s.handleOverlay)
		})

		r.Get("/api/documents/{docID}/pages", s.handleListPages)
		r.Get("/api/pages/{pageID}", s.handleGetPage)
		r.Put("/api/pages/{pageID}/type", s.handleSetPageType)

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Get("/api/stats/catalog", s.handleCatalogStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
