package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hydrocalc/internal/models"
)

// Params is the validated, method specific field set shared by all rows of a
// scenario. Exactly one implementation exists per MethodType.
type Params interface {
	Method() MethodType
	Validate() error
}

type ModFliesszeitParams struct {
	Vo20 float64 `json:"Vo20" validate:"gte=0"`
	Psi  float64 `json:"psi" validate:"gte=0,lte=1"`
}

func (ModFliesszeitParams) Method() MethodType { return MethodModFliesszeit }
func (p ModFliesszeitParams) Validate() error  { return ValidateStruct(p) }

type KoellaParams struct {
	Vo20        float64 `json:"Vo20" validate:"gte=0"`
	GlacierArea float64 `json:"glacier_area" validate:"gte=0"`
}

func (KoellaParams) Method() MethodType { return MethodKoella }
func (p KoellaParams) Validate() error  { return ValidateStruct(p) }

// ClarkWSLParams carries the zone fractions of a unit-hydrograph row. A nil
// set leaves existing fractions untouched on create.
type ClarkWSLParams struct {
	Fractions FractionSet `json:"fractions" validate:"omitempty,dive,keys,required,endkeys,gte=0,lte=100"`
}

func (ClarkWSLParams) Method() MethodType { return MethodClarkWSL }
func (p ClarkWSLParams) Validate() error  { return ValidateStruct(p) }

// NAMParams are the rainfall-runoff fields. Empty modes are replaced by their
// defaults during resolution.
type NAMParams struct {
	PrecipitationFactor float64 `json:"precipitation_factor" validate:"gte=0"`
	ReadinessToDrain    float64 `json:"readiness_to_drain" validate:"gte=0"`
	WaterBalanceMode    string  `json:"water_balance_mode"`
	StormCenterMode     string  `json:"storm_center_mode"`
	RoutingMethod       string  `json:"routing_method"`
}

func (NAMParams) Method() MethodType { return MethodNAM }
func (p NAMParams) Validate() error  { return ValidateStruct(p) }

// WithDefaults fills omitted modes
func (p NAMParams) WithDefaults() NAMParams {
	if p.WaterBalanceMode == "" {
		p.WaterBalanceMode = models.DefaultWaterBalanceMode
	}
	if p.StormCenterMode == "" {
		p.StormCenterMode = models.DefaultStormCenterMode
	}
	if p.RoutingMethod == "" {
		p.RoutingMethod = models.DefaultRoutingMethod
	}
	return p
}

// DefaultParams returns the field values of the scenario seeded into new projects
func DefaultParams(method MethodType) Params {
	switch method {
	case MethodModFliesszeit:
		return ModFliesszeitParams{}
	case MethodKoella:
		return KoellaParams{}
	case MethodClarkWSL:
		return ClarkWSLParams{}
	case MethodNAM:
		return NAMParams{PrecipitationFactor: models.DefaultPrecipitationFactor}.WithDefaults()
	default:
		return nil
	}
}

// DecodeParams decodes a JSON object into the Params variant of method and
// validates it. Unknown fields are rejected.
func DecodeParams(method MethodType, raw json.RawMessage) (Params, error) {
	var target Params
	switch method {
	case MethodModFliesszeit:
		target = &ModFliesszeitParams{}
	case MethodKoella:
		target = &KoellaParams{}
	case MethodClarkWSL:
		target = &ClarkWSLParams{}
	case MethodNAM:
		target = &NAMParams{}
	default:
		return nil, models.NewValidationError("method", "invalid calculation type: %q", method)
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return nil, fmt.Errorf("%w: %s fields: %v", models.ErrInvalidPayload, method, err)
		}
	}

	params := reflect.ValueOf(target).Elem().Interface().(Params)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs the struct's validate tags and reports the first
// violation as a ValidationError named after the JSON field.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate %T: %w", v, err)
	}

	fe := fieldErrs[0]
	msg := fmt.Sprintf("failed on '%s' validation", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed on '%s=%s' validation", fe.Tag(), fe.Param())
	}
	return &models.ValidationError{Field: fieldPath(fe), Message: msg}
}

// fieldPath strips the struct name from the namespace: "NAMParams.psi" -> "psi"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
