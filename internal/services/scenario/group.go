package scenario

import (
	"sort"

	"hydrocalc/internal/models"
)

// Scenario is a group of rows of one method, one per annuality
type Scenario struct {
	Method      MethodType `json:"method"`
	RowIDs      []uint     `json:"ids"`
	Annualities []float64  `json:"annualities"`
	Params      Params     `json:"params"`
}

type rowInfo struct {
	id          uint
	annualityID uint
	number      float64
	params      Params
}

// Scenarios groups the rows of method into scenarios. Rows are taken in id
// order and a new scenario starts whenever an annuality repeats, which matches
// how scenarios are created.
func Scenarios(p *models.Project, method MethodType) []Scenario {
	rows := rowsOf(p, method)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	var out []Scenario
	var current *Scenario
	seen := map[uint]bool{}
	for _, r := range rows {
		if current == nil || seen[r.annualityID] {
			out = append(out, Scenario{Method: method, Params: r.params})
			current = &out[len(out)-1]
			seen = map[uint]bool{}
		}
		seen[r.annualityID] = true
		current.RowIDs = append(current.RowIDs, r.id)
		current.Annualities = append(current.Annualities, r.number)
	}
	return out
}

func rowsOf(p *models.Project, method MethodType) []rowInfo {
	var rows []rowInfo
	switch method {
	case MethodModFliesszeit:
		for _, r := range p.ModFliesszeit {
			rows = append(rows, rowInfo{r.ID, r.AnnualityID, r.Annuality.Number, ModFliesszeitParams{Vo20: r.Vo20, Psi: r.Psi}})
		}
	case MethodKoella:
		for _, r := range p.Koella {
			rows = append(rows, rowInfo{r.ID, r.AnnualityID, r.Annuality.Number, KoellaParams{Vo20: r.Vo20, GlacierArea: r.GlacierArea}})
		}
	case MethodClarkWSL:
		for _, r := range p.ClarkWSL {
			set := make(FractionSet, len(r.Fractions))
			for _, f := range r.Fractions {
				set[f.ZoneParameterTyp] = f.Pct
			}
			rows = append(rows, rowInfo{r.ID, r.AnnualityID, r.Annuality.Number, ClarkWSLParams{Fractions: set}})
		}
	case MethodNAM:
		for _, r := range p.NAM {
			rows = append(rows, rowInfo{r.ID, r.AnnualityID, r.Annuality.Number, NAMParams{
				PrecipitationFactor: r.PrecipitationFactor,
				ReadinessToDrain:    r.ReadinessToDrain,
				WaterBalanceMode:    r.WaterBalanceMode,
				StormCenterMode:     r.StormCenterMode,
				RoutingMethod:       r.RoutingMethod,
			}})
		}
	}
	return rows
}
