// Package export renders a project view as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"hydrocalc/internal/models"
)

// Sheet names, in workbook order
const (
	SheetProject       = "Project"
	SheetModFliesszeit = "Mod_Fliesszeit"
	SheetKoella        = "Koella"
	SheetClarkWSL      = "ClarkWSL"
	SheetNAM           = "NAM"
)

var resultHeader = []interface{}{"climate_scenario", "HQ", "Tc", "TB", "TFl"}

// WriteProjectWorkbook writes view as an .xlsx workbook to w: one sheet with
// the project data and one sheet per calculation method, one line per row.
func WriteProjectWorkbook(view *models.ProjectView, w io.Writer) error {
	if view == nil {
		return fmt.Errorf("export: nil project")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetProject); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, name := range []string{SheetModFliesszeit, SheetKoella, SheetClarkWSL, SheetNAM} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("export: create sheet %s: %w", name, err)
		}
	}

	sw := &sheetWriter{f: f}
	sw.projectSheet(view)
	sw.modFliesszeitSheet(view.ModFliesszeit)
	sw.koellaSheet(view.Koella)
	sw.clarkWSLSheet(view.ClarkWSL, view.Zones)
	sw.namSheet(view.NAM)
	if sw.err != nil {
		return fmt.Errorf("export: %w", sw.err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so the sheet builders stay linear
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (s *sheetWriter) row(sheet string, n int, values ...interface{}) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetSheetRow(sheet, cell, &values); err != nil {
		s.err = fmt.Errorf("sheet %s row %d: %w", sheet, n, err)
	}
}

func (s *sheetWriter) projectSheet(view *models.ProjectView) {
	p := view.Project
	lines := [][]interface{}{
		{"id", p.ID},
		{"title", p.Title},
		{"description", p.Description},
		{"user_id", p.UserID},
		{"northing", p.Point.Northing},
		{"easting", p.Point.Easting},
		{"catchment_area", p.CatchmentArea},
		{"channel_length", p.ChannelLength},
		{"delta_h", p.DeltaH},
		{"isozones_taskid", p.IsozonesTaskID},
		{"last_modified", p.LastModified.UTC().Format(time.RFC3339)},
	}
	if idf := p.IDFParameters; idf != nil {
		lines = append(lines,
			[]interface{}{"P_low_1h", idf.PLow1h},
			[]interface{}{"P_high_1h", idf.PHigh1h},
			[]interface{}{"P_low_24h", idf.PLow24h},
			[]interface{}{"P_high_24h", idf.PHigh24h},
			[]interface{}{"rp_low", idf.RpLow},
			[]interface{}{"rp_high", idf.RpHigh},
		)
	}
	for i, line := range lines {
		s.row(SheetProject, i+1, line...)
	}
}

func (s *sheetWriter) modFliesszeitSheet(rows []models.ModFliesszeit) {
	s.row(SheetModFliesszeit, 1, withResultHeader("id", "annuality", "Vo20", "psi")...)
	for i, r := range rows {
		res := make([]models.ResultValues, len(r.Results))
		for j := range r.Results {
			res[j] = r.Results[j].ResultValues
		}
		s.row(SheetModFliesszeit, i+2, withResult(res, r.ID, r.Annuality.Number, r.Vo20, r.Psi)...)
	}
}

func (s *sheetWriter) koellaSheet(rows []models.Koella) {
	s.row(SheetKoella, 1, withResultHeader("id", "annuality", "Vo20", "glacier_area")...)
	for i, r := range rows {
		res := make([]models.ResultValues, len(r.Results))
		for j := range r.Results {
			res[j] = r.Results[j].ResultValues
		}
		s.row(SheetKoella, i+2, withResult(res, r.ID, r.Annuality.Number, r.Vo20, r.GlacierArea)...)
	}
}

func (s *sheetWriter) clarkWSLSheet(rows []models.ClarkWSL, zones []models.ZoneParameter) {
	header := []interface{}{"id", "annuality"}
	for _, z := range zones {
		header = append(header, "zone_"+z.Typ)
	}
	s.row(SheetClarkWSL, 1, withResultHeader(header...)...)

	for i, r := range rows {
		pct := make(map[string]float64, len(r.Fractions))
		for _, fr := range r.Fractions {
			pct[fr.ZoneParameterTyp] = fr.Pct
		}
		values := []interface{}{r.ID, r.Annuality.Number}
		for _, z := range zones {
			values = append(values, pct[z.Typ])
		}

		res := make([]models.ResultValues, len(r.Results))
		for j := range r.Results {
			res[j] = r.Results[j].ResultValues
		}
		s.row(SheetClarkWSL, i+2, withResult(res, values...)...)
	}
}

func (s *sheetWriter) namSheet(rows []models.NAM) {
	s.row(SheetNAM, 1, withResultHeader("id", "annuality", "precipitation_factor", "readiness_to_drain",
		"water_balance_mode", "storm_center_mode", "routing_method")...)
	for i, r := range rows {
		res := make([]models.ResultValues, len(r.Results))
		for j := range r.Results {
			res[j] = r.Results[j].ResultValues
		}
		s.row(SheetNAM, i+2, withResult(res, r.ID, r.Annuality.Number, r.PrecipitationFactor, r.ReadinessToDrain,
			r.WaterBalanceMode, r.StormCenterMode, r.RoutingMethod)...)
	}
}

func withResultHeader(cols ...interface{}) []interface{} {
	return append(cols, resultHeader...)
}

// withResult appends the figures of the current climate scenario, or of the
// first result when none is marked current. Rows without results get no
// result cells.
func withResult(results []models.ResultValues, values ...interface{}) []interface{} {
	if len(results) == 0 {
		return values
	}
	pick := results[0]
	for _, r := range results {
		if r.ClimateScenario == "current" {
			pick = r
			break
		}
	}
	return append(values, pick.ClimateScenario, pick.HQ, pick.Tc, pick.TB, pick.TFl)
}
