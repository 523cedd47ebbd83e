package models

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidPayload is returned when a bulk-save payload cannot be decoded
	// into the expected structure. Nothing has been written when it is returned.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotFound is returned when a project or a scenario row does not exist
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a user tries to delete a project they do not own
	ErrForbidden = errors.New("forbidden")
	// ErrArtifactUnavailable is returned when a batch result file cannot be read
	// from the backend or from object storage
	ErrArtifactUnavailable = errors.New("artifact unavailable")
)

// ValidationError represents a rejected identifier or field value. Operations
// returning it have not mutated any state.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SubmissionError is a transport or HTTP failure while submitting a task to the
// processing backend. Submissions are never retried.
type SubmissionError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submit %s: %v", e.Endpoint, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollTransportError is a failed or undecodable status poll. Pollers log it and
// keep polling.
type PollTransportError struct {
	TaskID string
	Err    error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("poll task %s: %v", e.TaskID, e.Err)
}

func (e *PollTransportError) Unwrap() error { return e.Err }

// StatusFor maps an error to an HTTP status code and a client-facing message
func StatusFor(err error) (int, string) {
	var validationErr *ValidationError
	var submissionErr *SubmissionError

	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.As(err, &submissionErr):
		return http.StatusBadGateway, submissionErr.Error()
	case errors.Is(err, ErrArtifactUnavailable):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
