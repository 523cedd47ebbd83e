package main

import (
	"context"
	"fmt"
	"log"

	"hydrocalc/internal/api"
	"hydrocalc/internal/config"
	"hydrocalc/internal/database"
	"hydrocalc/internal/server"
	"hydrocalc/internal/services/coordinator"
	"hydrocalc/internal/services/geoprocess"
	"hydrocalc/internal/services/project"
	"hydrocalc/internal/services/scenario"
	"hydrocalc/internal/services/scheduler"
	"hydrocalc/internal/services/tasks"
	"hydrocalc/internal/storage"

	"gorm.io/gorm"
)

// App struct - main application state
type App struct {
	ctx    context.Context
	cfg    *config.Config
	db     *gorm.DB
	client *api.Client

	tracker          *tasks.Tracker
	store            *scenario.Store
	projectService   *project.Service
	coordinator      *coordinator.Service
	geoService       *geoprocess.Service
	mirror           *storage.ArtifactMirror
	schedulerService *scheduler.Service
	server           *server.Server
}

// NewApp creates a new App for cfg
func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// startup opens the parameter store and wires every service. The context
// bounds background work such as scheduled jobs.
func (a *App) startup(ctx context.Context) error {
	a.ctx = ctx
	log.Println("Application starting up...")

	db, err := database.Init(a.cfg.Database, a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db
	log.Println("Database initialized successfully")

	a.client = api.NewClient(a.cfg.Backend.BaseURL, a.cfg.Backend.Timeout)
	a.tracker = tasks.NewTracker()

	a.store = scenario.NewStore(db)
	a.projectService = project.NewService(db, a.store, a.cfg.Annualities)
	a.coordinator = coordinator.NewService(a.store, a.projectService)
	log.Println("Project services initialized")

	a.geoService = geoprocess.NewService(a.client, a.projectService, a.tracker, tasks.NewLayerSet(), a.cfg.Backend.PollInterval)
	if a.cfg.Storage.Enabled {
		objects, err := storage.NewMinIOStorage(ctx, a.cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize artifact storage: %w", err)
		}
		a.mirror = storage.NewArtifactMirror(a.client, objects)
		a.geoService.SetMirror(a.mirror)
		log.Printf("Artifact mirror enabled (bucket %s)", a.cfg.Storage.Bucket)
	}
	log.Printf("Geoprocess service initialized (backend %s)", a.client.BaseURL())

	a.schedulerService = scheduler.NewService(ctx, db)
	if err := a.schedulerService.Start(); err != nil {
		log.Printf("[WARN] Failed to start scheduler: %v", err)
	} else {
		log.Println("Scheduler service initialized and started")
		if _, err := a.schedulerService.EnsureTaskSweep(a.tracker, a.cfg.Scheduler.TaskSweepCron, a.cfg.Scheduler.TaskRetention); err != nil {
			log.Printf("[WARN] task sweep not scheduled: %v", err)
		}
		if a.mirror != nil {
			if _, err := a.schedulerService.EnsureArtifactPrune(a.mirror, a.cfg.Scheduler.ArtifactPruneCron, a.cfg.Scheduler.ArtifactRetention); err != nil {
				log.Printf("[WARN] artifact prune not scheduled: %v", err)
			}
		}
	}

	log.Println("Startup complete")
	return nil
}

// serve runs the HTTP API until ctx is cancelled or the listener fails
func (a *App) serve(ctx context.Context) error {
	deps := server.Deps{
		Projects:    a.projectService,
		Store:       a.store,
		Coordinator: a.coordinator,
		Geo:         a.geoService,
		Artifacts:   a.client,
	}
	if a.mirror != nil {
		deps.Mirror = a.mirror
	}
	a.server = server.New(a.cfg.Server, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// shutdown stops the HTTP server, pending pollers and the scheduler, then
// closes the database.
func (a *App) shutdown(ctx context.Context) {
	log.Println("Application shutting down...")

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			log.Printf("[ERROR] server shutdown: %v", err)
		}
	}

	if a.tracker != nil {
		if err := a.tracker.Shutdown(ctx); err != nil {
			log.Printf("[WARN] pollers still running at shutdown: %v", err)
		}
	}

	if a.schedulerService != nil {
		a.schedulerService.Stop()
	}

	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	log.Println("Shutdown complete")
}
