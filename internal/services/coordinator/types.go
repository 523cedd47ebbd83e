package coordinator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"hydrocalc/internal/models"
	"hydrocalc/internal/services/project"
	"hydrocalc/internal/services/scenario"
)

// RowIDs decodes a list of row ids given as JSON numbers or numeric strings,
// as sent by form based clients.
type RowIDs []uint

func (r *RowIDs) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("ids must be a list: %w", err)
	}

	ids := make(RowIDs, 0, len(items))
	for _, item := range items {
		var n uint
		if err := json.Unmarshal(item, &n); err == nil {
			ids = append(ids, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("invalid row id %s", item)
		}
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid row id %q", s)
		}
		ids = append(ids, uint(v))
	}
	*r = ids
	return nil
}

// ModFliesszeitBatch applies one set of values to the rows of one scenario
type ModFliesszeitBatch struct {
	IDs RowIDs `json:"ids" validate:"required,min=1,unique,dive,gt=0"`
	scenario.ModFliesszeitParams
}

type KoellaBatch struct {
	IDs RowIDs `json:"ids" validate:"required,min=1,unique,dive,gt=0"`
	scenario.KoellaParams
}

type ClarkWSLBatch struct {
	IDs RowIDs `json:"ids" validate:"required,min=1,unique,dive,gt=0"`
	scenario.ClarkWSLParams
}

type NAMBatch struct {
	IDs RowIDs `json:"ids" validate:"required,min=1,unique,dive,gt=0"`
	scenario.NAMParams
}

// BulkPayload is the decoded "payload" field of a bulk-save request
type BulkPayload struct {
	IDF           *project.IDFInput    `json:"idf"`
	ModFliesszeit []ModFliesszeitBatch `json:"modFliesszeit" validate:"dive"`
	Koella        []KoellaBatch        `json:"koella" validate:"dive"`
	ClarkWSL      []ClarkWSLBatch      `json:"clarkWSL" validate:"dive"`
	NAM           []NAMBatch           `json:"nam" validate:"dive"`
}

// Batch is one scenario update of a bulk save
type Batch struct {
	Method scenario.MethodType
	IDs    []uint
	Params scenario.Params
}

// Batches returns the scenario batches in processing order: method by method,
// and within a method in payload order.
func (p *BulkPayload) Batches() []Batch {
	var out []Batch
	for _, b := range p.ModFliesszeit {
		out = append(out, Batch{scenario.MethodModFliesszeit, b.IDs, b.ModFliesszeitParams})
	}
	for _, b := range p.Koella {
		out = append(out, Batch{scenario.MethodKoella, b.IDs, b.KoellaParams})
	}
	for _, b := range p.ClarkWSL {
		out = append(out, Batch{scenario.MethodClarkWSL, b.IDs, b.ClarkWSLParams})
	}
	for _, b := range p.NAM {
		out = append(out, Batch{scenario.MethodNAM, b.IDs, namDefaults(b.NAMParams)})
	}
	return out
}

// DeleteResult is returned by DeleteScenario instead of a project view
type DeleteResult struct {
	Success bool   `json:"success"`
	Deleted []uint `json:"ids"`
}

// namDefaults applies the bulk update fallbacks: a zero precipitation factor
// means "not given".
func namDefaults(p scenario.NAMParams) scenario.NAMParams {
	if p.PrecipitationFactor == 0 {
		p.PrecipitationFactor = models.DefaultPrecipitationFactor
	}
	return p.WithDefaults()
}
