package scenario

import (
	"strings"

	"hydrocalc/internal/models"
)

// MethodType names one of the four calculation method tables
type MethodType string

const (
	MethodModFliesszeit MethodType = "modfliesszeit"
	MethodKoella        MethodType = "koella"
	MethodClarkWSL      MethodType = "clarkwsl"
	MethodNAM           MethodType = "nam"
)

// Methods lists every method in display order
var Methods = []MethodType{MethodModFliesszeit, MethodKoella, MethodClarkWSL, MethodNAM}

// ParseMethod accepts the method names used by forms and payload keys
// ("modfliesszeit", "mod_fliesszeit", "clarkWSL", ...).
func ParseMethod(raw string) (MethodType, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""))
	for _, m := range Methods {
		if key == string(m) {
			return m, nil
		}
	}
	return "", models.NewValidationError("method", "invalid calculation type: %q", raw)
}

func (m MethodType) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

func (m MethodType) String() string { return string(m) }

// Label is the human readable name of the method
func (m MethodType) Label() string {
	switch m {
	case MethodModFliesszeit:
		return "Mod. Fliesszeit"
	case MethodKoella:
		return "Kölla"
	case MethodClarkWSL:
		return "Clark-WSL"
	case MethodNAM:
		return "NAM"
	default:
		return string(m)
	}
}

// newModel returns a pointer to an empty row of the method's table
func (m MethodType) newModel() interface{} {
	switch m {
	case MethodModFliesszeit:
		return &models.ModFliesszeit{}
	case MethodKoella:
		return &models.Koella{}
	case MethodClarkWSL:
		return &models.ClarkWSL{}
	case MethodNAM:
		return &models.NAM{}
	default:
		return nil
	}
}

// resultModel returns the result table of the method and its parent column
func (m MethodType) resultModel() (interface{}, string) {
	switch m {
	case MethodModFliesszeit:
		return &models.ModFliesszeitResult{}, "mod_fliesszeit_id"
	case MethodKoella:
		return &models.KoellaResult{}, "koella_id"
	case MethodClarkWSL:
		return &models.ClarkWSLResult{}, "clarkwsl_id"
	case MethodNAM:
		return &models.NAMResult{}, "nam_id"
	default:
		return nil, ""
	}
}

// ScenarioRef identifies the rows created for one scenario
type ScenarioRef struct {
	Method    MethodType `json:"method"`
	ProjectID string     `json:"project_id"`
	RowIDs    []uint     `json:"ids"`
}

// FractionSet maps a zone parameter type to its percentage
type FractionSet map[string]float64
