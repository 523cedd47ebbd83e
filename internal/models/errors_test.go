package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"nil", nil, http.StatusOK, ""},
		{"validation", NewValidationError("water_balance_mode", "invalid water balance mode: %s", "x"), http.StatusBadRequest, "water_balance_mode: invalid water balance mode: x"},
		{"wrapped validation", fmt.Errorf("update nam: %w", &ValidationError{Field: "ids", Message: "required"}), http.StatusBadRequest, "ids: required"},
		{"invalid payload", fmt.Errorf("%w: unexpected end of JSON input", ErrInvalidPayload), http.StatusBadRequest, "invalid payload: unexpected end of JSON input"},
		{"not found", fmt.Errorf("project abc: %w", ErrNotFound), http.StatusNotFound, "project abc: not found"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"submission", &SubmissionError{Endpoint: "catchment/", StatusCode: 503, Err: errors.New("unavailable")}, http.StatusBadGateway, "submit catchment/: status 503: unavailable"},
		{"artifact unavailable", fmt.Errorf("%w: file/T1: connection refused", ErrArtifactUnavailable), http.StatusBadGateway, "artifact unavailable: file/T1: connection refused"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := StatusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestPollTransportError(t *testing.T) {
	t.Run("Should unwrap the underlying error", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := &PollTransportError{TaskID: "T1", Err: cause}

		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "poll task T1: connection refused", err.Error())
	})
}
