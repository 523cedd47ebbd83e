package geoprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"hydrocalc/internal/models"
	"hydrocalc/internal/services/tasks"
)

// Layer names handed to the map renderer
const (
	LayerCatchment     = "catchment"
	LayerRiverNetwork  = "rivernetwork"
	LayerIsozone       = "isozone"
	LayerSubcatchments = "subcatchments"
)

// Backend is the processing backend as used by the service
type Backend interface {
	tasks.StatusFetcher
	SubmitCatchment(ctx context.Context, northing, easting float64, withRiverNetwork bool) (tasks.Handle, error)
	SubmitIsozones(ctx context.Context, projectID string) (tasks.Handle, error)
	SubmitSubcatchments(ctx context.Context, filename string, zip io.Reader) (tasks.Handle, error)
	ArtifactURL(taskID string) string
}

// Projects is the part of the project repository isozone runs need
type Projects interface {
	Exists(ctx context.Context, id string) (bool, error)
	SetIsozonesTask(ctx context.Context, projectID, taskID string) error
}

// Mirror copies a finished batch artifact to object storage
type Mirror interface {
	Mirror(ctx context.Context, taskID string) (string, error)
}

// Service submits geoprocessing tasks, tracks their pollers and publishes
// finished results as map layers.
type Service struct {
	backend  Backend
	projects Projects
	tracker  *tasks.Tracker
	layers   *tasks.LayerSet
	interval time.Duration

	mirror        Mirror
	mirrorTimeout time.Duration
}

// NewService creates a new geoprocess service. interval is the poll cadence;
// zero means tasks.DefaultPollInterval.
func NewService(backend Backend, projects Projects, tracker *tasks.Tracker, layers *tasks.LayerSet, interval time.Duration) *Service {
	return &Service{
		backend:       backend,
		projects:      projects,
		tracker:       tracker,
		layers:        layers,
		interval:      interval,
		mirrorTimeout: 5 * time.Minute,
	}
}

// SetMirror enables copying subcatchment artifacts into object storage
func (s *Service) SetMirror(m Mirror) {
	s.mirror = m
}

func (s *Service) Layers() *tasks.LayerSet { return s.layers }

// StartCatchment submits a catchment delineation and starts its poller. The
// run is returned as soon as the task is accepted.
func (s *Service) StartCatchment(ctx context.Context, northing, easting float64, withRiverNetwork bool) (*tasks.Run, error) {
	h, err := s.backend.SubmitCatchment(ctx, northing, easting, withRiverNetwork)
	if err != nil {
		return nil, err
	}
	log.Printf("[%s] catchment submitted for N=%g E=%g", h.ID, northing, easting)

	p := tasks.NewInteractivePoller(s.backend, s.interval, tasks.Callbacks[tasks.CatchmentResult]{
		OnResult: s.catchmentReady,
		OnError:  logFailure("catchment"),
	})
	return tasks.Track(s.tracker, p, h)
}

// StartIsozones submits the isozone computation of a project and records the
// task id on the project.
func (s *Service) StartIsozones(ctx context.Context, projectID string) (*tasks.Run, error) {
	if projectID == "" {
		return nil, models.NewValidationError("project_id", "missing project id")
	}
	exists, err := s.projects.Exists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("project %s: %w", projectID, models.ErrNotFound)
	}

	h, err := s.backend.SubmitIsozones(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.projects.SetIsozonesTask(ctx, projectID, h.ID); err != nil {
		log.Printf("[WARN] [%s] isozones task not recorded on project %s: %v", h.ID, projectID, err)
	}

	p := tasks.NewInteractivePoller(s.backend, s.interval, tasks.Callbacks[json.RawMessage]{
		OnResult: func(h tasks.Handle, result json.RawMessage) {
			s.layers.ReplaceLayer(tasks.Layer{Name: LayerIsozone, TaskID: h.ID, Data: result})
		},
		OnError: logFailure("isozones"),
	})
	return tasks.Track(s.tracker, p, h)
}

// StartSubcatchments uploads a zipped point shapefile and starts an artifact
// poller. When a mirror is set the result file is copied once it is ready.
func (s *Service) StartSubcatchments(ctx context.Context, filename string, zip io.Reader) (*tasks.Run, error) {
	if filename == "" {
		return nil, models.NewValidationError("points_shapefile_zip", "missing file")
	}

	h, err := s.backend.SubmitSubcatchments(ctx, filename, zip)
	if err != nil {
		return nil, err
	}
	log.Printf("[%s] subcatchments submitted from %s", h.ID, filename)

	p := tasks.NewArtifactPoller(s.backend, s.interval, tasks.Callbacks[json.RawMessage]{
		OnArtifact: s.artifactReady,
		OnError:    logFailure("subcatchments"),
	})
	return tasks.Track(s.tracker, p, h)
}

// Progress returns the current state of a tracked task. A finished run is
// marked consumed so the next sweep drops it.
func (s *Service) Progress(taskID string) (tasks.RunSnapshot, error) {
	run, ok := s.tracker.Get(taskID)
	if !ok {
		return tasks.RunSnapshot{}, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	snap := run.Snapshot()
	if !snap.Busy {
		s.tracker.Consume(taskID)
	}
	return snap, nil
}

// Cancel stops polling taskID. The backend task itself keeps running.
func (s *Service) Cancel(taskID string) error {
	return s.tracker.Cancel(taskID)
}

func (s *Service) catchmentReady(h tasks.Handle, result tasks.CatchmentResult) {
	s.layers.ReplaceLayer(tasks.Layer{Name: LayerCatchment, TaskID: h.ID, Data: result.Geometry})
	if len(result.RiverNetwork) > 0 && string(result.RiverNetwork) != "null" {
		s.layers.ReplaceLayer(tasks.Layer{Name: LayerRiverNetwork, TaskID: h.ID, Data: result.RiverNetwork})
	}
	log.Printf("[%s] catchment ready, max outlet distance %g", h.ID, result.MaxOutletDistance)
}

func (s *Service) artifactReady(ref tasks.ArtifactRef) {
	url := s.backend.ArtifactURL(ref.TaskID)
	s.layers.ReplaceLayer(tasks.Layer{Name: LayerSubcatchments, TaskID: ref.TaskID, URL: url})

	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.mirrorTimeout)
	defer cancel()
	if _, err := s.mirror.Mirror(ctx, ref.TaskID); err != nil {
		log.Printf("[ERROR] [%s] %v", ref.TaskID, err)
	}
}

func logFailure(kind string) func(tasks.Handle, json.RawMessage) {
	return func(h tasks.Handle, payload json.RawMessage) {
		log.Printf("[ERROR] [%s] %s task failed: %s", h.ID, kind, truncate(string(payload), 300))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
