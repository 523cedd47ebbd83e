package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hydrocalc/internal/export"
	"hydrocalc/internal/models"
	"hydrocalc/internal/services/project"
)

type deleteProjectsRequest struct {
	IDs    []string `json:"ids"`
	UserID uint     `json:"user_id"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var in project.CreateProjectInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.deps.Projects.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := s.deps.Projects.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Projects.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var in project.UpdateProjectInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.deps.Projects.UpdateMetadata(r.Context(), chi.URLParam(r, "projectID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.deps.Projects.Delete(r.Context(), chi.URLParam(r, "projectID"), userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) deleteProjects(w http.ResponseWriter, r *http.Request) {
	var req deleteProjectsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID == 0 {
		writeError(w, r, models.NewValidationError("user_id", "missing user id"))
		return
	}

	if err := s.deps.Projects.DeleteMany(r.Context(), req.IDs, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) exportProject(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Projects.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteProjectWorkbook(view, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%s.xlsx"`, view.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// updateIDF takes the IDF form of the project page
func (s *Server) updateIDF(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}

	var in project.IDFInput
	fields := []struct {
		name string
		dst  *float64
	}{
		{"P_low_1h", &in.PLow1h},
		{"P_high_1h", &in.PHigh1h},
		{"P_low_24h", &in.PLow24h},
		{"P_high_24h", &in.PHigh24h},
		{"rp_low", &in.RpLow},
		{"rp_high", &in.RpHigh},
	}
	for _, f := range fields {
		v, err := formFloat(r, f.name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		*f.dst = v
	}

	projectID := chi.URLParam(r, "projectID")
	if err := s.deps.Projects.UpsertIDF(r.Context(), projectID, in); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.deps.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
