package project

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"hydrocalc/internal/models"
	"hydrocalc/internal/services/scenario"
)

// Service is the project repository. It owns the project aggregate and seeds
// new projects with one default scenario per method.
type Service struct {
	db          *gorm.DB
	store       *scenario.Store
	annualities []float64
}

// NewService creates a new project service. annualities are the return
// periods every new project gets a scenario row for.
func NewService(db *gorm.DB, store *scenario.Store, annualities []float64) *Service {
	return &Service{db: db, store: store, annualities: annualities}
}

// Annualities returns the configured return periods
func (s *Service) Annualities() []float64 {
	out := make([]float64, len(s.annualities))
	copy(out, s.annualities)
	return out
}

// Create stores a new project with its location, lazily creates the
// configured annualities and one default scenario per method.
func (s *Service) Create(ctx context.Context, in CreateProjectInput) (*models.ProjectView, error) {
	if err := scenario.ValidateStruct(in); err != nil {
		return nil, err
	}

	project := models.Project{
		Title:         in.Title,
		Description:   in.Description,
		UserID:        in.UserID,
		Point:         models.Point{Northing: in.Northing, Easting: in.Easting},
		CatchmentArea: in.CatchmentArea,
		ChannelLength: in.ChannelLength,
		DeltaH:        in.DeltaH,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTx(tx)

		if _, err := store.EnsureAnnualities(ctx, s.annualities); err != nil {
			return err
		}

		if err := tx.Create(&project).Error; err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		for _, method := range scenario.Methods {
			if _, err := store.CreateScenario(ctx, project.ID, method, s.annualities, scenario.DefaultParams(method)); err != nil {
				return fmt.Errorf("failed to seed %s scenario: %w", method, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] created project %s (%q) for user %d", project.ID, project.Title, project.UserID)
	return s.Get(ctx, project.ID)
}

// Get loads the full project aggregate: location, IDF parameters and every
// method row with its annuality, results and fractions, rows ordered by id.
func (s *Service) Get(ctx context.Context, id string) (*models.ProjectView, error) {
	byID := func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }

	var project models.Project
	err := s.db.WithContext(ctx).
		Preload("Point").
		Preload("IDFParameters").
		Preload("ModFliesszeit", byID).
		Preload("ModFliesszeit.Annuality").
		Preload("ModFliesszeit.Results", byID).
		Preload("Koella", byID).
		Preload("Koella.Annuality").
		Preload("Koella.Results", byID).
		Preload("ClarkWSL", byID).
		Preload("ClarkWSL.Annuality").
		Preload("ClarkWSL.Results", byID).
		Preload("ClarkWSL.Fractions", byID).
		Preload("NAM", byID).
		Preload("NAM.Annuality").
		Preload("NAM.Results", byID).
		First(&project, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("project %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}

	zones, err := s.store.Zones(ctx)
	if err != nil {
		return nil, err
	}

	return &models.ProjectView{Project: project, Zones: zones}, nil
}

// Exists reports whether a project with id exists
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up project %s: %w", id, err)
	}
	return count > 0, nil
}

// ListByUser returns the projects of a user, most recently modified first
func (s *Service) ListByUser(ctx context.Context, userID uint) ([]ProjectSummary, error) {
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Preload("Point").
		Where("user_id = ?", userID).
		Order("last_modified DESC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	out := make([]ProjectSummary, len(projects))
	for i, p := range projects {
		out[i] = ProjectSummary{
			ID:           p.ID,
			Title:        p.Title,
			Description:  p.Description,
			Northing:     p.Point.Northing,
			Easting:      p.Point.Easting,
			LastModified: p.LastModified.Format(time.RFC3339),
		}
	}
	return out, nil
}

// UpdateMetadata applies the non-nil fields of in
func (s *Service) UpdateMetadata(ctx context.Context, id string, in UpdateProjectInput) (*models.ProjectView, error) {
	if err := scenario.ValidateStruct(in); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("failed to load project %s: %w", id, err)
		}

		updates := map[string]interface{}{"last_modified": time.Now()}
		if in.Title != nil {
			updates["title"] = *in.Title
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.CatchmentArea != nil {
			updates["catchment_area"] = *in.CatchmentArea
		}
		if in.ChannelLength != nil {
			updates["channel_length"] = *in.ChannelLength
		}
		if in.DeltaH != nil {
			updates["delta_h"] = *in.DeltaH
		}
		if err := tx.Model(&models.Project{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update project %s: %w", id, err)
		}

		point := map[string]interface{}{}
		if in.Northing != nil {
			point["northing"] = *in.Northing
		}
		if in.Easting != nil {
			point["easting"] = *in.Easting
		}
		if len(point) > 0 {
			if err := tx.Model(&models.Point{}).Where("id = ?", project.PointID).Updates(point).Error; err != nil {
				return fmt.Errorf("failed to move project %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// UpsertIDF creates or updates the IDF parameter set of a project
func (s *Service) UpsertIDF(ctx context.Context, projectID string, in IDFInput) error {
	if err := scenario.ValidateStruct(in); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("project %s: %w", projectID, models.ErrNotFound)
			}
			return fmt.Errorf("failed to load project %s: %w", projectID, err)
		}

		values := map[string]interface{}{
			"p_low_1h":   in.PLow1h,
			"p_high_1h":  in.PHigh1h,
			"p_low_24h":  in.PLow24h,
			"p_high_24h": in.PHigh24h,
			"rp_low":     in.RpLow,
			"rp_high":    in.RpHigh,
		}

		if project.IDFParametersID != nil {
			res := tx.Model(&models.IDFParameters{}).Where("id = ?", *project.IDFParametersID).Updates(values)
			if res.Error != nil {
				return fmt.Errorf("failed to update IDF parameters: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				return s.touch(tx, projectID)
			}
		}

		idf := models.IDFParameters{
			PLow1h:   in.PLow1h,
			PHigh1h:  in.PHigh1h,
			PLow24h:  in.PLow24h,
			PHigh24h: in.PHigh24h,
			RpLow:    in.RpLow,
			RpHigh:   in.RpHigh,
		}
		if err := tx.Create(&idf).Error; err != nil {
			return fmt.Errorf("failed to create IDF parameters: %w", err)
		}
		if err := tx.Model(&models.Project{}).Where("id = ?", projectID).Update("idf_parameters_id", idf.ID).Error; err != nil {
			return fmt.Errorf("failed to link IDF parameters: %w", err)
		}
		return s.touch(tx, projectID)
	})
}

// SetIsozonesTask remembers the isozone task started for a project
func (s *Service) SetIsozonesTask(ctx context.Context, projectID, taskID string) error {
	res := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).
		Updates(map[string]interface{}{"isozones_taskid": taskID, "last_modified": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to store isozones task of project %s: %w", projectID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("project %s: %w", projectID, models.ErrNotFound)
	}
	return nil
}

// Touch bumps the modification time of a project
func (s *Service) Touch(ctx context.Context, projectID string) error {
	return s.touch(s.db.WithContext(ctx), projectID)
}

func (s *Service) touch(db *gorm.DB, projectID string) error {
	if err := db.Model(&models.Project{}).Where("id = ?", projectID).UpdateColumn("last_modified", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to touch project %s: %w", projectID, err)
	}
	return nil
}

// Delete removes a project with every owned row. Only the owner may delete it.
func (s *Service) Delete(ctx context.Context, id string, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.deleteTx(ctx, tx, id, userID)
	})
}

// DeleteMany removes several projects of one user atomically
func (s *Service) DeleteMany(ctx context.Context, ids []string, userID uint) error {
	if len(ids) == 0 {
		return models.NewValidationError("ids", "at least one id is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := s.deleteTx(ctx, tx, id, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) deleteTx(ctx context.Context, tx *gorm.DB, id string, userID uint) error {
	var project models.Project
	if err := tx.First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to load project %s: %w", id, err)
	}
	if project.UserID != userID {
		return fmt.Errorf("project %s belongs to another user: %w", id, models.ErrForbidden)
	}

	store := s.store.WithTx(tx)
	for _, method := range scenario.Methods {
		ids, err := rowIDs(tx, method, id)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			continue
		}
		if err := store.DeleteScenario(ctx, method, ids); err != nil {
			return err
		}
	}

	if err := tx.Delete(&models.Project{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	if err := tx.Delete(&models.Point{}, "id = ?", project.PointID).Error; err != nil {
		return fmt.Errorf("failed to delete point of project %s: %w", id, err)
	}
	if project.IDFParametersID != nil {
		if err := tx.Delete(&models.IDFParameters{}, *project.IDFParametersID).Error; err != nil {
			return fmt.Errorf("failed to delete IDF parameters of project %s: %w", id, err)
		}
	}

	log.Printf("[INFO] deleted project %s of user %d", id, userID)
	return nil
}

func rowIDs(tx *gorm.DB, method scenario.MethodType, projectID string) ([]uint, error) {
	var ids []uint
	var model interface{}
	switch method {
	case scenario.MethodModFliesszeit:
		model = &models.ModFliesszeit{}
	case scenario.MethodKoella:
		model = &models.Koella{}
	case scenario.MethodClarkWSL:
		model = &models.ClarkWSL{}
	case scenario.MethodNAM:
		model = &models.NAM{}
	}
	if err := tx.Model(model).Where("project_id = ?", projectID).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s rows of project %s: %w", method, projectID, err)
	}
	return ids, nil
}
