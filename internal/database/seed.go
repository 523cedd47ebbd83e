package database

import (
	"fmt"

	"hydrocalc/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ZoneParameters are the discharge types a ClarkWSL row is broken into, in
// display order.
var ZoneParameters = []models.ZoneParameter{
	{Typ: "1", Description: "Sealed surfaces, immediate runoff", SortOrder: 0, WSV: 0, Psi: 1.0},
	{Typ: "2", Description: "Shallow soils, fast runoff", SortOrder: 1, WSV: 20, Psi: 0.8},
	{Typ: "3", Description: "Moderate storage, delayed runoff", SortOrder: 2, WSV: 40, Psi: 0.6},
	{Typ: "4", Description: "Deep soils, strongly delayed runoff", SortOrder: 3, WSV: 70, Psi: 0.45},
	{Typ: "5", Description: "High storage, little runoff", SortOrder: 4, WSV: 100, Psi: 0.3},
	{Typ: "6", Description: "Forest, high retention", SortOrder: 5, WSV: 130, Psi: 0.2},
	{Typ: "7", Description: "Karst, very high retention", SortOrder: 6, WSV: 170, Psi: 0.1},
	{Typ: "8", Description: "Open water and wetlands", SortOrder: 7, WSV: 0, Psi: 0.05},
}

var waterBalanceModes = []models.WaterBalanceMode{
	{Mode: "simple", Description: "Simple water balance"},
	{Mode: "uniform", Description: "Uniform distribution"},
	{Mode: "cumulative", Description: "Cumulative infiltration"},
}

var stormCenterModes = []models.StormCenterMode{
	{Mode: "centroid", Description: "Catchment centroid"},
	{Mode: "user_point", Description: "User defined point"},
	{Mode: "discharge_point", Description: "Discharge point"},
}

var routingMethods = []models.RoutingMethod{
	{Method: "time_values", Description: "Travel time values"},
	{Method: "isozone", Description: "Isozone raster"},
	{Method: "travel_time", Description: "Travel time grid"},
}

// SeedReferenceData inserts the zone parameter and mode lookup rows. Existing
// rows are left untouched so operators can edit descriptions.
func SeedReferenceData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		seeds := []struct {
			name  string
			value interface{}
		}{
			{"zone parameters", &ZoneParameters},
			{"water balance modes", &waterBalanceModes},
			{"storm center modes", &stormCenterModes},
			{"routing methods", &routingMethods},
		}
		for _, seed := range seeds {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed.value).Error; err != nil {
				return fmt.Errorf("failed to seed %s: %w", seed.name, err)
			}
		}
		return nil
	})
}
