package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"hydrocalc/internal/models"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := models.StatusFor(err)
	body := errorBody{Error: msg}

	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		body.Field = vErr.Field
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a single JSON document into v. Unknown fields and trailing
// data are rejected as ErrInvalidPayload.
func decodeJSON(r *http.Request, v interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after body", models.ErrInvalidPayload)
	}
	return nil
}

// parseForm parses multipart and urlencoded bodies alike
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxUploadSize)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if errors.Is(err, http.ErrNotMultipart) {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
		}
	}
	return nil
}

// formFloat reads a numeric form field. Missing or empty fields are 0.
func formFloat(r *http.Request, field string) (float64, error) {
	raw := r.FormValue(field)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, models.NewValidationError(field, "invalid number: %q", raw)
	}
	return v, nil
}

func queryUserID(r *http.Request) (uint, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return 0, models.NewValidationError("user_id", "missing user id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("user_id", "invalid user id: %q", raw)
	}
	return uint(id), nil
}
