package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hydrocalc/internal/config"
	"hydrocalc/internal/services/coordinator"
	"hydrocalc/internal/services/geoprocess"
	"hydrocalc/internal/services/project"
	"hydrocalc/internal/services/scenario"
)

// maxUploadSize bounds multipart bodies (bulk-save payloads, shapefile zips)
const maxUploadSize = 32 << 20

// ArtifactSource streams a batch result file from the processing backend
type ArtifactSource interface {
	DownloadArtifact(ctx context.Context, taskID string) (io.ReadCloser, string, error)
}

// ArtifactStore serves artifacts copied to object storage
type ArtifactStore interface {
	Mirrored(taskID string) bool
	Open(ctx context.Context, taskID string) (io.ReadCloser, error)
}

// Deps are the services behind the HTTP surface. Mirror may be nil.
type Deps struct {
	Projects    *project.Service
	Store       *scenario.Store
	Coordinator *coordinator.Service
	Geo         *geoprocess.Service
	Artifacts   ArtifactSource
	Mirror      ArtifactStore
}

// Server exposes projects, scenarios and geoprocessing tasks over HTTP
type Server struct {
	deps   Deps
	router chi.Router
	http   *http.Server
}

// New creates the server and registers every route
func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{deps: deps}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", s.createProject)
		r.Get("/", s.listProjects)
		r.Post("/delete", s.deleteProjects)

		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", s.getProject)
			r.Patch("/", s.updateProject)
			r.Delete("/", s.deleteProject)
			r.Get("/export.xlsx", s.exportProject)
			r.Post("/bulk-save", s.bulkSave)
			r.Post("/idf", s.updateIDF)
			r.Post("/scenarios/{method}", s.createScenario)
			r.Put("/scenarios/{method}", s.updateScenario)
			r.Delete("/scenarios/{method}", s.deleteScenario)
			r.Post("/rows/{method}", s.upsertRow)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/catchment", s.startCatchment)
		r.Post("/subcatchments", s.startSubcatchments)
		r.Post("/isozones", s.startIsozones)
		r.Get("/{taskID}/progress", s.taskProgress)
		r.Get("/{taskID}/file", s.taskArtifact)
		r.Delete("/{taskID}", s.cancelTask)
	})

	r.Get("/layers", s.listLayers)
	return r
}

// ListenAndServe serves until Shutdown is called
func (s *Server) ListenAndServe() error {
	log.Printf("[INFO] HTTP server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
