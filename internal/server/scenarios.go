package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hydrocalc/internal/models"
	"hydrocalc/internal/services/coordinator"
	"hydrocalc/internal/services/scenario"
)

type createScenarioRequest struct {
	Annualities []float64       `json:"annualities"`
	Fields      json.RawMessage `json:"fields"`
}

type updateScenarioRequest struct {
	IDs    coordinator.RowIDs `json:"ids"`
	Fields json.RawMessage    `json:"fields"`
}

type deleteScenarioRequest struct {
	IDs coordinator.RowIDs `json:"ids"`
}

type createScenarioResponse struct {
	Scenario *scenario.ScenarioRef `json:"scenario"`
	Project  *models.ProjectView   `json:"project"`
}

func methodParam(r *http.Request) (scenario.MethodType, error) {
	return scenario.ParseMethod(chi.URLParam(r, "method"))
}

// bulkSave takes a multipart form with the fields project_id and payload
func (s *Server) bulkSave(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}

	projectID := chi.URLParam(r, "projectID")
	if formID := r.FormValue("project_id"); formID != "" && formID != projectID {
		writeError(w, r, models.NewValidationError("project_id", "project id %q does not match the url", formID))
		return
	}

	view, err := s.deps.Coordinator.BulkSave(r.Context(), projectID, []byte(r.FormValue("payload")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) createScenario(w http.ResponseWriter, r *http.Request) {
	method, err := methodParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	params, err := scenario.DecodeParams(method, req.Fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	annualities := req.Annualities
	if len(annualities) == 0 {
		annualities = s.deps.Projects.Annualities()
	}

	projectID := chi.URLParam(r, "projectID")
	ref, err := s.deps.Store.CreateScenario(r.Context(), projectID, method, annualities, params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.deps.Projects.Get(r.Context(), projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createScenarioResponse{Scenario: ref, Project: view})
}

func (s *Server) updateScenario(w http.ResponseWriter, r *http.Request) {
	method, err := methodParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	params, err := scenario.DecodeParams(method, req.Fields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.deps.Coordinator.UpdateScenario(r.Context(), chi.URLParam(r, "projectID"), method, req.IDs, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) deleteScenario(w http.ResponseWriter, r *http.Request) {
	method, err := methodParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req deleteScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Coordinator.DeleteScenario(r.Context(), chi.URLParam(r, "projectID"), method, req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// upsertRow takes the single row edit form of a method: row_id (empty for a
// new row), x (annuality number), the method's fields and, for clarkwsl,
// zone_<index> percentages in zone order.
func (s *Server) upsertRow(w http.ResponseWriter, r *http.Request) {
	method, err := methodParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}

	var rowID *uint
	if raw := r.FormValue("row_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, models.NewValidationError("row_id", "invalid row id: %q", raw))
			return
		}
		v := uint(id)
		rowID = &v
	}

	if r.FormValue("x") == "" {
		writeError(w, r, models.NewValidationError("x", "missing annuality"))
		return
	}
	annuality, err := formFloat(r, "x")
	if err != nil {
		writeError(w, r, err)
		return
	}

	params, err := s.rowParams(r, method)
	if err != nil {
		writeError(w, r, err)
		return
	}

	row, err := s.deps.Store.UpsertRow(r.Context(), chi.URLParam(r, "projectID"), method, rowID, annuality, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Projects.Touch(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) rowParams(r *http.Request, method scenario.MethodType) (scenario.Params, error) {
	floats := func(names ...string) ([]float64, error) {
		out := make([]float64, len(names))
		for i, name := range names {
			v, err := formFloat(r, name)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	var params scenario.Params
	switch method {
	case scenario.MethodModFliesszeit:
		v, err := floats("Vo20", "psi")
		if err != nil {
			return nil, err
		}
		params = scenario.ModFliesszeitParams{Vo20: v[0], Psi: v[1]}

	case scenario.MethodKoella:
		v, err := floats("Vo20", "glacier_area")
		if err != nil {
			return nil, err
		}
		params = scenario.KoellaParams{Vo20: v[0], GlacierArea: v[1]}

	case scenario.MethodClarkWSL:
		zones, err := s.deps.Store.Zones(r.Context())
		if err != nil {
			return nil, err
		}
		byIndex := make(map[int]float64)
		for key := range r.Form {
			if !strings.HasPrefix(key, "zone_") {
				continue
			}
			idx, err := strconv.Atoi(strings.TrimPrefix(key, "zone_"))
			if err != nil || idx < 0 || idx >= len(zones) {
				return nil, models.NewValidationError(key, "unknown zone")
			}
			pct, err := formFloat(r, key)
			if err != nil {
				return nil, err
			}
			byIndex[idx] = pct
		}
		params = scenario.ClarkWSLParams{Fractions: scenario.FractionsByIndex(zones, byIndex)}

	case scenario.MethodNAM:
		v, err := floats("precipitation_factor", "readiness_to_drain")
		if err != nil {
			return nil, err
		}
		params = scenario.NAMParams{
			PrecipitationFactor: v[0],
			ReadinessToDrain:    v[1],
			WaterBalanceMode:    r.FormValue("water_balance_mode"),
			StormCenterMode:     r.FormValue("storm_center_mode"),
			RoutingMethod:       r.FormValue("routing_method"),
		}

	default:
		return nil, models.NewValidationError("type", "invalid calculation type: %q", method)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}
