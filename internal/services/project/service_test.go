package project

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hydrocalc/internal/database"
	"hydrocalc/internal/models"
	"hydrocalc/internal/services/scenario"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := database.OpenTestDB(t)
	return NewService(db, scenario.NewStore(db), []float64{2.3, 20, 100}), db
}

func newProject(t *testing.T, svc *Service, userID uint) *models.ProjectView {
	t.Helper()
	view, err := svc.Create(context.Background(), CreateProjectInput{
		Title:    "Emme",
		UserID:   userID,
		Northing: 1200000,
		Easting:  2620000,
	})
	require.NoError(t, err)
	return view
}

func TestCreate(t *testing.T) {
	t.Run("Should seed one default scenario per method", func(t *testing.T) {
		svc, db := setupService(t)
		view := newProject(t, svc, 1)

		assert.NotEmpty(t, view.ID)
		assert.Equal(t, 1200000.0, view.Point.Northing)
		assert.Len(t, view.ModFliesszeit, 3)
		assert.Len(t, view.Koella, 3)
		assert.Len(t, view.ClarkWSL, 3)
		assert.Len(t, view.NAM, 3)
		assert.Len(t, view.Zones, len(database.ZoneParameters))

		for i, row := range view.NAM {
			assert.Equal(t, 0.7, row.PrecipitationFactor)
			assert.Equal(t, "cumulative", row.WaterBalanceMode)
			if i > 0 {
				assert.Less(t, view.NAM[i-1].ID, row.ID)
			}
		}
		assert.Equal(t, 2.3, view.ModFliesszeit[0].Annuality.Number)

		var annualities int64
		require.NoError(t, db.Model(&models.Annuality{}).Count(&annualities).Error)
		assert.Equal(t, int64(3), annualities)
	})

	t.Run("Should reuse existing annualities for the next project", func(t *testing.T) {
		svc, db := setupService(t)
		newProject(t, svc, 1)
		newProject(t, svc, 1)

		var annualities int64
		require.NoError(t, db.Model(&models.Annuality{}).Count(&annualities).Error)
		assert.Equal(t, int64(3), annualities)
	})

	t.Run("Should require a title", func(t *testing.T) {
		svc, _ := setupService(t)

		_, err := svc.Create(context.Background(), CreateProjectInput{UserID: 1, Northing: 1, Easting: 1})
		var vErr *models.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "title", vErr.Field)
	})
}

func TestGet(t *testing.T) {
	t.Run("Should return not found for an unknown project", func(t *testing.T) {
		svc, _ := setupService(t)
		_, err := svc.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestUpdateMetadata(t *testing.T) {
	t.Run("Should update only the given fields", func(t *testing.T) {
		svc, _ := setupService(t)
		view := newProject(t, svc, 1)

		title := "Emme bei Emmenmatt"
		easting := 2625000.0
		updated, err := svc.UpdateMetadata(context.Background(), view.ID, UpdateProjectInput{Title: &title, Easting: &easting})
		require.NoError(t, err)

		assert.Equal(t, title, updated.Title)
		assert.Equal(t, easting, updated.Point.Easting)
		assert.Equal(t, 1200000.0, updated.Point.Northing)
	})

	t.Run("Should return not found for an unknown project", func(t *testing.T) {
		svc, _ := setupService(t)
		_, err := svc.UpdateMetadata(context.Background(), "missing", UpdateProjectInput{})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestUpsertIDF(t *testing.T) {
	t.Run("Should create then update the parameter set", func(t *testing.T) {
		svc, db := setupService(t)
		ctx := context.Background()
		view := newProject(t, svc, 1)

		require.NoError(t, svc.UpsertIDF(ctx, view.ID, IDFInput{PLow1h: 20, PHigh1h: 45, RpLow: 2.33, RpHigh: 100}))
		require.NoError(t, svc.UpsertIDF(ctx, view.ID, IDFInput{PLow1h: 22, PHigh1h: 45, RpLow: 2.33, RpHigh: 100}))

		got, err := svc.Get(ctx, view.ID)
		require.NoError(t, err)
		require.NotNil(t, got.IDFParameters)
		assert.Equal(t, 22.0, got.IDFParameters.PLow1h)

		var count int64
		require.NoError(t, db.Model(&models.IDFParameters{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestListByUser(t *testing.T) {
	t.Run("Should list only the user's projects", func(t *testing.T) {
		svc, _ := setupService(t)
		newProject(t, svc, 1)
		newProject(t, svc, 1)
		newProject(t, svc, 2)

		list, err := svc.ListByUser(context.Background(), 1)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

func TestDelete(t *testing.T) {
	t.Run("Should cascade every owned row", func(t *testing.T) {
		svc, db := setupService(t)
		ctx := context.Background()
		view := newProject(t, svc, 1)
		keep := newProject(t, svc, 1)
		require.NoError(t, svc.UpsertIDF(ctx, view.ID, IDFInput{PLow1h: 1}))
		require.NoError(t, svc.store.ReplaceFractions(ctx, view.ClarkWSL[0].ID, scenario.FractionSet{"1": 100}))

		require.NoError(t, svc.Delete(ctx, view.ID, 1))

		_, err := svc.Get(ctx, view.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		for _, model := range []interface{}{&models.ModFliesszeit{}, &models.Koella{}, &models.ClarkWSL{}, &models.NAM{}} {
			var n int64
			require.NoError(t, db.Model(model).Where("project_id = ?", view.ID).Count(&n).Error)
			assert.Zero(t, n)
		}
		var fractions, idf, points int64
		require.NoError(t, db.Model(&models.Fraction{}).Count(&fractions).Error)
		require.NoError(t, db.Model(&models.IDFParameters{}).Count(&idf).Error)
		require.NoError(t, db.Model(&models.Point{}).Count(&points).Error)
		assert.Zero(t, fractions)
		assert.Zero(t, idf)
		assert.Equal(t, int64(1), points)

		_, err = svc.Get(ctx, keep.ID)
		assert.NoError(t, err)
	})

	t.Run("Should refuse to delete another user's project", func(t *testing.T) {
		svc, _ := setupService(t)
		view := newProject(t, svc, 1)

		err := svc.Delete(context.Background(), view.ID, 2)
		assert.ErrorIs(t, err, models.ErrForbidden)

		_, err = svc.Get(context.Background(), view.ID)
		assert.NoError(t, err)
	})

	t.Run("Should delete several projects atomically", func(t *testing.T) {
		svc, _ := setupService(t)
		ctx := context.Background()
		mine := newProject(t, svc, 1)
		theirs := newProject(t, svc, 2)

		err := svc.DeleteMany(ctx, []string{mine.ID, theirs.ID}, 1)
		assert.ErrorIs(t, err, models.ErrForbidden)

		_, err = svc.Get(ctx, mine.ID)
		assert.NoError(t, err, "first delete must be rolled back")
	})
}

func TestSetIsozonesTask(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	view := newProject(t, svc, 1)

	require.NoError(t, svc.SetIsozonesTask(ctx, view.ID, "iso-1"))
	got, err := svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "iso-1", got.IsozonesTaskID)

	assert.ErrorIs(t, svc.SetIsozonesTask(ctx, "missing", "iso-2"), models.ErrNotFound)
}
