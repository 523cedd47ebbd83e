package scenario

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"gorm.io/gorm"

	"hydrocalc/internal/models"
)

// Store is the persistent scenario model. Every write runs in a transaction
// covering at least one scenario (all annuality rows) or all fractions of a row.
type Store struct {
	db   *gorm.DB
	inTx bool
}

// NewStore creates a new scenario store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to an already open transaction
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, inTx: true}
}

// InTx runs fn against a store bound to one transaction. Calls made through
// the bound store join that transaction instead of opening their own.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if s.inTx {
		return s.db
	}
	return s.db.WithContext(ctx)
}

// EnsureAnnualities returns the annuality rows for numbers in the given order,
// creating missing ones. Existing rows are never modified.
func (s *Store) EnsureAnnualities(ctx context.Context, numbers []float64) ([]models.Annuality, error) {
	if err := checkDistinct(numbers); err != nil {
		return nil, err
	}

	out := make([]models.Annuality, 0, len(numbers))
	err := s.InTx(ctx, func(tx *Store) error {
		for _, n := range numbers {
			annuality := models.Annuality{Number: n}
			err := tx.db.Where("number = ?", n).
				Attrs(models.Annuality{Description: models.DefaultAnnualityDescription(n)}).
				FirstOrCreate(&annuality).Error
			if err != nil {
				return fmt.Errorf("failed to ensure annuality %g: %w", n, err)
			}
			out = append(out, annuality)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveAnnualities looks up existing annuality rows by number, in order
func (s *Store) ResolveAnnualities(ctx context.Context, numbers []float64) ([]models.Annuality, error) {
	if len(numbers) == 0 {
		return nil, models.NewValidationError("annualities", "at least one annuality is required")
	}
	if err := checkDistinct(numbers); err != nil {
		return nil, err
	}

	var found []models.Annuality
	if err := s.conn(ctx).Where("number IN ?", numbers).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to load annualities: %w", err)
	}

	byNumber := make(map[float64]models.Annuality, len(found))
	for _, a := range found {
		byNumber[a.Number] = a
	}

	out := make([]models.Annuality, 0, len(numbers))
	for _, n := range numbers {
		a, ok := byNumber[n]
		if !ok {
			return nil, models.NewValidationError("x", "annuality %g does not exist", n)
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateScenario creates one row per annuality, all sharing params
func (s *Store) CreateScenario(ctx context.Context, projectID string, method MethodType, annualities []float64, params Params) (*ScenarioRef, error) {
	if projectID == "" {
		return nil, models.NewValidationError("project_id", "missing project id")
	}
	if err := checkParams(method, params); err != nil {
		return nil, err
	}

	ref := &ScenarioRef{Method: method, ProjectID: projectID}
	err := s.InTx(ctx, func(tx *Store) error {
		if err := tx.requireProject(projectID); err != nil {
			return err
		}

		resolved, err := tx.ResolveAnnualities(ctx, annualities)
		if err != nil {
			return err
		}

		if nam, ok := params.(NAMParams); ok {
			if params, err = tx.ResolveModes(ctx, nam); err != nil {
				return err
			}
		}

		for _, annuality := range resolved {
			id, err := tx.createRow(ctx, projectID, annuality.ID, params)
			if err != nil {
				return err
			}
			ref.RowIDs = append(ref.RowIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] project %s: created %s scenario with rows %v", projectID, method, ref.RowIDs)
	return ref, nil
}

// UpsertRow updates the row rowID when given, otherwise creates a row. The
// annuality is resolved by number before anything is written.
func (s *Store) UpsertRow(ctx context.Context, projectID string, method MethodType, rowID *uint, annualityNumber float64, params Params) (models.MethodRow, error) {
	if projectID == "" {
		return nil, models.NewValidationError("project_id", "missing project id")
	}
	if err := checkParams(method, params); err != nil {
		return nil, err
	}

	var id uint
	err := s.InTx(ctx, func(tx *Store) error {
		if err := tx.requireProject(projectID); err != nil {
			return err
		}

		resolved, err := tx.ResolveAnnualities(ctx, []float64{annualityNumber})
		if err != nil {
			return err
		}
		annualityID := resolved[0].ID

		if nam, ok := params.(NAMParams); ok {
			if params, err = tx.ResolveModes(ctx, nam); err != nil {
				return err
			}
		}

		if rowID == nil || *rowID == 0 {
			id, err = tx.createRow(ctx, projectID, annualityID, params)
			return err
		}

		id = *rowID
		if err := tx.RequireRows(ctx, projectID, method, []uint{id}); err != nil {
			return err
		}
		if err := tx.db.Model(method.newModel()).Where("id = ?", id).Update("x", annualityID).Error; err != nil {
			return fmt.Errorf("failed to move %s row %d to annuality %d: %w", method, id, annualityID, err)
		}
		return tx.applyParams(ctx, id, params)
	})
	if err != nil {
		return nil, err
	}

	return s.loadRow(ctx, method, id)
}

// UpdateRow writes params to an existing row. For clarkwsl rows the fractions
// are fully replaced.
func (s *Store) UpdateRow(ctx context.Context, method MethodType, id uint, params Params) error {
	if err := checkParams(method, params); err != nil {
		return err
	}
	return s.InTx(ctx, func(tx *Store) error {
		if nam, ok := params.(NAMParams); ok {
			resolved, err := tx.ResolveModes(ctx, nam)
			if err != nil {
				return err
			}
			params = resolved
		}
		return tx.applyParams(ctx, id, params)
	})
}

// DeleteScenario deletes the rows ids of method with their results, and for
// clarkwsl their fractions first.
func (s *Store) DeleteScenario(ctx context.Context, method MethodType, ids []uint) error {
	if !method.Valid() {
		return models.NewValidationError("type", "invalid calculation type: %q", method)
	}
	if len(ids) == 0 {
		return models.NewValidationError("ids", "at least one id is required")
	}

	var deleted int64
	err := s.InTx(ctx, func(tx *Store) error {
		result, column := method.resultModel()
		if err := tx.db.Where(column+" IN ?", ids).Delete(result).Error; err != nil {
			return fmt.Errorf("failed to delete %s results: %w", method, err)
		}

		if method == MethodClarkWSL {
			if err := tx.db.Where("clarkwsl_id IN ?", ids).Delete(&models.Fraction{}).Error; err != nil {
				return fmt.Errorf("failed to delete fractions: %w", err)
			}
		}

		res := tx.db.Where("id IN ?", ids).Delete(method.newModel())
		if res.Error != nil {
			return fmt.Errorf("failed to delete %s rows: %w", method, res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[INFO] deleted %d %s rows (%v)", deleted, method, ids)
	return nil
}

// ReplaceFractions deletes every fraction of the clarkwsl row rowID and
// inserts one fraction per zone parameter. Zones missing from set get 0.
func (s *Store) ReplaceFractions(ctx context.Context, rowID uint, set FractionSet) error {
	return s.InTx(ctx, func(tx *Store) error {
		zones, err := tx.Zones(ctx)
		if err != nil {
			return err
		}
		if err := checkZoneTypes(zones, set); err != nil {
			return err
		}

		var count int64
		if err := tx.db.Model(&models.ClarkWSL{}).Where("id = ?", rowID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to load clarkwsl row %d: %w", rowID, err)
		}
		if count == 0 {
			return fmt.Errorf("clarkwsl row %d: %w", rowID, models.ErrNotFound)
		}

		if err := tx.db.Where("clarkwsl_id = ?", rowID).Delete(&models.Fraction{}).Error; err != nil {
			return fmt.Errorf("failed to delete fractions of row %d: %w", rowID, err)
		}

		fractions := make([]models.Fraction, 0, len(zones))
		for _, z := range zones {
			fractions = append(fractions, models.Fraction{
				ClarkWSLID:       rowID,
				ZoneParameterTyp: z.Typ,
				Pct:              set[z.Typ],
			})
		}
		if err := tx.db.Create(&fractions).Error; err != nil {
			return fmt.Errorf("failed to create fractions of row %d: %w", rowID, err)
		}
		return nil
	})
}

// Zones returns the zone parameters in display order
func (s *Store) Zones(ctx context.Context) ([]models.ZoneParameter, error) {
	var zones []models.ZoneParameter
	if err := s.conn(ctx).Order("sort_order ASC, typ ASC").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to load zone parameters: %w", err)
	}
	return zones, nil
}

// CheckFractions verifies that every key of set is a known zone type
func (s *Store) CheckFractions(ctx context.Context, set FractionSet) error {
	zones, err := s.Zones(ctx)
	if err != nil {
		return err
	}
	return checkZoneTypes(zones, set)
}

func checkZoneTypes(zones []models.ZoneParameter, set FractionSet) error {
	known := make(map[string]bool, len(zones))
	for _, z := range zones {
		known[z.Typ] = true
	}
	for typ := range set {
		if !known[typ] {
			return models.NewValidationError("fractions", "unknown zone parameter type %q", typ)
		}
	}
	return nil
}

// FractionsByIndex maps form values zone_0..zone_n onto zone types using the
// display order of the zones.
func FractionsByIndex(zones []models.ZoneParameter, byIndex map[int]float64) FractionSet {
	set := make(FractionSet, len(zones))
	for i, z := range zones {
		set[z.Typ] = byIndex[i]
	}
	return set
}

// ResolveModes applies the mode defaults and checks each mode against its
// lookup table. Nothing is written.
func (s *Store) ResolveModes(ctx context.Context, p NAMParams) (NAMParams, error) {
	p = p.WithDefaults()

	checks := []struct {
		model interface{}
		key   string
		field string
		label string
		value string
	}{
		{&models.WaterBalanceMode{}, "mode", "water_balance_mode", "water balance mode", p.WaterBalanceMode},
		{&models.StormCenterMode{}, "mode", "storm_center_mode", "storm center mode", p.StormCenterMode},
		{&models.RoutingMethod{}, "method", "routing_method", "routing method", p.RoutingMethod},
	}

	db := s.conn(ctx)
	for _, c := range checks {
		var count int64
		if err := db.Model(c.model).Where(c.key+" = ?", c.value).Count(&count).Error; err != nil {
			return p, fmt.Errorf("failed to look up %s: %w", c.label, err)
		}
		if count == 0 {
			return p, models.NewValidationError(c.field, "invalid %s: %s", c.label, c.value)
		}
	}
	return p, nil
}

// RequireRows fails with ErrNotFound unless every id is a row of method owned
// by projectID.
func (s *Store) RequireRows(ctx context.Context, projectID string, method MethodType, ids []uint) error {
	if len(ids) == 0 {
		return models.NewValidationError("ids", "at least one id is required")
	}

	var found []uint
	err := s.conn(ctx).Model(method.newModel()).
		Where("project_id = ? AND id IN ?", projectID, ids).
		Pluck("id", &found).Error
	if err != nil {
		return fmt.Errorf("failed to load %s rows: %w", method, err)
	}

	have := make(map[uint]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var missing []uint
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return fmt.Errorf("%s rows %v of project %s: %w", method, missing, projectID, models.ErrNotFound)
	}
	return nil
}

func (s *Store) requireProject(projectID string) error {
	var count int64
	if err := s.db.Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to load project %s: %w", projectID, err)
	}
	if count == 0 {
		return fmt.Errorf("project %s: %w", projectID, models.ErrNotFound)
	}
	return nil
}

// createRow inserts a single row. Must run inside a transaction.
func (s *Store) createRow(ctx context.Context, projectID string, annualityID uint, params Params) (uint, error) {
	var row models.MethodRow
	switch p := params.(type) {
	case ModFliesszeitParams:
		r := &models.ModFliesszeit{ProjectID: projectID, AnnualityID: annualityID, Vo20: p.Vo20, Psi: p.Psi}
		if err := s.db.Omit("Annuality").Create(r).Error; err != nil {
			return 0, fmt.Errorf("failed to create mod_fliesszeit row: %w", err)
		}
		row = r
	case KoellaParams:
		r := &models.Koella{ProjectID: projectID, AnnualityID: annualityID, Vo20: p.Vo20, GlacierArea: p.GlacierArea}
		if err := s.db.Omit("Annuality").Create(r).Error; err != nil {
			return 0, fmt.Errorf("failed to create koella row: %w", err)
		}
		row = r
	case ClarkWSLParams:
		r := &models.ClarkWSL{ProjectID: projectID, AnnualityID: annualityID}
		if err := s.db.Omit("Annuality").Create(r).Error; err != nil {
			return 0, fmt.Errorf("failed to create clarkwsl row: %w", err)
		}
		if p.Fractions != nil {
			if err := s.ReplaceFractions(ctx, r.ID, p.Fractions); err != nil {
				return 0, err
			}
		}
		row = r
	case NAMParams:
		r := &models.NAM{
			ProjectID:           projectID,
			AnnualityID:         annualityID,
			PrecipitationFactor: p.PrecipitationFactor,
			ReadinessToDrain:    p.ReadinessToDrain,
			WaterBalanceMode:    p.WaterBalanceMode,
			StormCenterMode:     p.StormCenterMode,
			RoutingMethod:       p.RoutingMethod,
		}
		if err := s.db.Omit("Annuality").Create(r).Error; err != nil {
			return 0, fmt.Errorf("failed to create nam row: %w", err)
		}
		row = r
	default:
		return 0, fmt.Errorf("unsupported params %T", params)
	}
	return row.GetID(), nil
}

// applyParams writes the shared fields to one row. Must run inside a transaction.
func (s *Store) applyParams(ctx context.Context, id uint, params Params) error {
	var updates map[string]interface{}
	switch p := params.(type) {
	case ModFliesszeitParams:
		updates = map[string]interface{}{"vo20": p.Vo20, "psi": p.Psi}
	case KoellaParams:
		updates = map[string]interface{}{"vo20": p.Vo20, "glacier_area": p.GlacierArea}
	case ClarkWSLParams:
		return s.ReplaceFractions(ctx, id, p.Fractions)
	case NAMParams:
		updates = map[string]interface{}{
			"precipitation_factor": p.PrecipitationFactor,
			"readiness_to_drain":   p.ReadinessToDrain,
			"water_balance_mode":   p.WaterBalanceMode,
			"storm_center_mode":    p.StormCenterMode,
			"routing_method":       p.RoutingMethod,
		}
	default:
		return fmt.Errorf("unsupported params %T", params)
	}

	method := params.Method()
	res := s.db.Model(method.newModel()).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s row %d: %w", method, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s row %d: %w", method, id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) loadRow(ctx context.Context, method MethodType, id uint) (models.MethodRow, error) {
	row := method.newModel()
	q := s.conn(ctx).Preload("Annuality").Preload("Results")
	if method == MethodClarkWSL {
		q = q.Preload("Fractions")
	}
	if err := q.First(row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s row %d: %w", method, id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load %s row %d: %w", method, id, err)
	}
	return row.(models.MethodRow), nil
}

func checkParams(method MethodType, params Params) error {
	if !method.Valid() {
		return models.NewValidationError("type", "invalid calculation type: %q", method)
	}
	if params == nil {
		return models.NewValidationError("params", "missing %s fields", method)
	}
	if params.Method() != method {
		return models.NewValidationError("params", "%s fields given for %s", params.Method(), method)
	}
	return params.Validate()
}

func checkDistinct(numbers []float64) error {
	seen := make(map[float64]bool, len(numbers))
	for _, n := range numbers {
		if seen[n] {
			return models.NewValidationError("annualities", "annuality %g listed twice", n)
		}
		seen[n] = true
	}
	return nil
}
