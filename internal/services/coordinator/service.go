package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"hydrocalc/internal/models"
	"hydrocalc/internal/services/project"
	"hydrocalc/internal/services/scenario"
)

// Service applies scenario edits spanning several rows, and bulk saves
// spanning several methods, and answers with the refreshed project.
type Service struct {
	store    *scenario.Store
	projects *project.Service
}

// NewService creates a new coordinator
func NewService(store *scenario.Store, projects *project.Service) *Service {
	return &Service{store: store, projects: projects}
}

// DecodeBulkPayload parses and validates a bulk-save payload. Any failure is
// reported as ErrInvalidPayload.
func DecodeBulkPayload(raw []byte) (*BulkPayload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", models.ErrInvalidPayload)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload must be a JSON object", models.ErrInvalidPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var payload BulkPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after payload", models.ErrInvalidPayload)
	}
	if err := scenario.ValidateStruct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return &payload, nil
}

// UpdateScenario applies params to every row in ids, all rows of one method,
// in one transaction, then returns the full project.
func (s *Service) UpdateScenario(ctx context.Context, projectID string, method scenario.MethodType, ids []uint, params scenario.Params) (*models.ProjectView, error) {
	if projectID == "" {
		return nil, models.NewValidationError("project_id", "missing project id")
	}
	if nam, ok := params.(scenario.NAMParams); ok {
		params = namDefaults(nam)
	}

	if err := s.applyBatch(ctx, projectID, Batch{Method: method, IDs: ids, Params: params}); err != nil {
		return nil, err
	}

	if err := s.projects.Touch(ctx, projectID); err != nil {
		log.Printf("[WARN] %v", err)
	}
	return s.projects.Get(ctx, projectID)
}

// BulkSave applies the IDF block and then every scenario batch, method by
// method. The payload is fully validated before anything is written. Each
// batch commits on its own: a failing batch does not roll back the IDF update
// or the batches applied before it.
func (s *Service) BulkSave(ctx context.Context, projectID string, raw []byte) (*models.ProjectView, error) {
	if projectID == "" {
		return nil, models.NewValidationError("project_id", "missing project id")
	}

	payload, err := DecodeBulkPayload(raw)
	if err != nil {
		return nil, err
	}

	exists, err := s.projects.Exists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("project %s: %w", projectID, models.ErrNotFound)
	}

	batches := payload.Batches()
	for i, b := range batches {
		if err := s.precheck(ctx, projectID, b); err != nil {
			return nil, fmt.Errorf("%s batch %d: %w", b.Method, i, err)
		}
	}

	if payload.IDF != nil {
		if err := s.projects.UpsertIDF(ctx, projectID, *payload.IDF); err != nil {
			return nil, fmt.Errorf("idf: %w", err)
		}
	}

	for i, b := range batches {
		if err := s.applyBatch(ctx, projectID, b); err != nil {
			log.Printf("[ERROR] project %s: bulk save stopped at %s batch %d, %d of %d batches applied: %v",
				projectID, b.Method, i, i, len(batches), err)
			return nil, fmt.Errorf("%s batch %d: %w", b.Method, i, err)
		}
	}

	log.Printf("[INFO] project %s: bulk save applied idf=%t batches=%d", projectID, payload.IDF != nil, len(batches))

	if err := s.projects.Touch(ctx, projectID); err != nil {
		log.Printf("[WARN] %v", err)
	}
	return s.projects.Get(ctx, projectID)
}

// DeleteScenario deletes the rows of one scenario. Unlike the update calls it
// answers with a success flag, not the project.
func (s *Service) DeleteScenario(ctx context.Context, projectID string, method scenario.MethodType, ids []uint) (*DeleteResult, error) {
	if !method.Valid() {
		return nil, models.NewValidationError("type", "invalid calculation type: %q", method)
	}
	if len(ids) == 0 {
		return nil, models.NewValidationError("ids", "at least one id is required")
	}

	err := s.store.InTx(ctx, func(tx *scenario.Store) error {
		if projectID != "" {
			if err := tx.RequireRows(ctx, projectID, method, ids); err != nil {
				return err
			}
		}
		return tx.DeleteScenario(ctx, method, ids)
	})
	if err != nil {
		return nil, err
	}

	if projectID != "" {
		if err := s.projects.Touch(ctx, projectID); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
	return &DeleteResult{Success: true, Deleted: ids}, nil
}

// precheck runs every check of a batch that needs no write: params, row
// ownership, modes and zone types.
func (s *Service) precheck(ctx context.Context, projectID string, b Batch) error {
	if err := b.Params.Validate(); err != nil {
		return err
	}
	if err := s.store.RequireRows(ctx, projectID, b.Method, b.IDs); err != nil {
		return err
	}
	switch p := b.Params.(type) {
	case scenario.NAMParams:
		if _, err := s.store.ResolveModes(ctx, p); err != nil {
			return err
		}
	case scenario.ClarkWSLParams:
		if err := s.store.CheckFractions(ctx, p.Fractions); err != nil {
			return err
		}
	}
	return nil
}

// applyBatch updates every row of one scenario in a single transaction
func (s *Service) applyBatch(ctx context.Context, projectID string, b Batch) error {
	if !b.Method.Valid() {
		return models.NewValidationError("type", "invalid calculation type: %q", b.Method)
	}
	if len(b.IDs) == 0 {
		return models.NewValidationError("ids", "at least one id is required")
	}

	return s.store.InTx(ctx, func(tx *scenario.Store) error {
		if err := tx.RequireRows(ctx, projectID, b.Method, b.IDs); err != nil {
			return err
		}
		for _, id := range b.IDs {
			if err := tx.UpdateRow(ctx, b.Method, id, b.Params); err != nil {
				return fmt.Errorf("row %d: %w", id, err)
			}
		}
		return nil
	})
}
