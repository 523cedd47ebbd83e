package server

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hydrocalc/internal/api"
	"hydrocalc/internal/models"
	"hydrocalc/internal/services/scenario"
	"hydrocalc/internal/services/tasks"
)

type catchmentRequest struct {
	Northing         float64 `json:"northing" validate:"required"`
	Easting          float64 `json:"easting" validate:"required"`
	WithRiverNetwork bool    `json:"rivernetwork"`
}

type isozonesRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
}

type taskAccepted struct {
	TaskID  string       `json:"task_id"`
	Status  tasks.Status `json:"task_status"`
	Variant string       `json:"variant"`
}

func accepted(w http.ResponseWriter, run *tasks.Run) {
	writeJSON(w, http.StatusAccepted, taskAccepted{
		TaskID:  run.Handle.ID,
		Status:  tasks.StatusPending,
		Variant: run.Variant.String(),
	})
}

func (s *Server) startCatchment(w http.ResponseWriter, r *http.Request) {
	var req catchmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := scenario.ValidateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}

	run, err := s.deps.Geo.StartCatchment(r.Context(), req.Northing, req.Easting, req.WithRiverNetwork)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accepted(w, run)
}

func (s *Server) startIsozones(w http.ResponseWriter, r *http.Request) {
	var req isozonesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := scenario.ValidateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}

	run, err := s.deps.Geo.StartIsozones(r.Context(), req.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accepted(w, run)
}

// startSubcatchments takes the zipped points shapefile as a multipart upload
func (s *Server) startSubcatchments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile(api.SubcatchmentsField)
	if err != nil {
		writeError(w, r, models.NewValidationError(api.SubcatchmentsField, "missing file"))
		return
	}
	defer file.Close()

	run, err := s.deps.Geo.StartSubcatchments(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accepted(w, run)
}

func (s *Server) taskProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Geo.Progress(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Geo.Cancel(chi.URLParam(r, "taskID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// taskArtifact serves the result file of a batch task, from object storage
// when it was mirrored there and from the backend otherwise.
func (s *Server) taskArtifact(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var (
		body        io.ReadCloser
		contentType = "application/zip"
		err         error
	)
	if s.deps.Mirror != nil && s.deps.Mirror.Mirrored(taskID) {
		body, err = s.deps.Mirror.Open(r.Context(), taskID)
	} else {
		var ct string
		body, ct, err = s.deps.Artifacts.DownloadArtifact(r.Context(), taskID)
		if ct != "" {
			contentType = ct
		}
	}
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %s: %v", models.ErrArtifactUnavailable, tasks.ArtifactPath(taskID), err))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+taskID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("[WARN] [%s] artifact download interrupted: %v", taskID, err)
	}
}

func (s *Server) listLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Geo.Layers().List())
}
