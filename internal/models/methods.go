package models

// MethodRow is implemented by the four calculation method tables.
type MethodRow interface {
	GetID() uint
	GetAnnualityID() uint
}

// ResultValues are the discharge figures the backend writes for one method row
// and one climate scenario.
type ResultValues struct {
	ClimateScenario string  `gorm:"column:climate_scenario;default:current" json:"climate_scenario"`
	HQ              float64 `gorm:"column:hq" json:"HQ"`
	Tc              float64 `gorm:"column:tc" json:"Tc"`
	TB              float64 `gorm:"column:tb" json:"TB"`
	TFl             float64 `gorm:"column:tfl" json:"TFl"`
}

// ModFliesszeit is a row of the modified time-of-concentration method
type ModFliesszeit struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	ProjectID   string                `gorm:"not null;index" json:"project_id"`
	AnnualityID uint                  `gorm:"column:x;not null" json:"x"`
	Annuality   Annuality             `gorm:"foreignKey:AnnualityID" json:"Annuality"`
	Vo20        float64               `gorm:"column:vo20" json:"Vo20"`
	Psi         float64               `gorm:"column:psi" json:"psi"`
	Results     []ModFliesszeitResult `gorm:"foreignKey:ModFliesszeitID" json:"Mod_Fliesszeit_Result"`
}

func (r ModFliesszeit) GetID() uint          { return r.ID }
func (r ModFliesszeit) GetAnnualityID() uint { return r.AnnualityID }

// TableName specifies the table name for GORM
func (ModFliesszeit) TableName() string {
	return "mod_fliesszeit"
}

// ModFliesszeitResult is written by the processing backend
type ModFliesszeitResult struct {
	ID              uint `gorm:"primaryKey" json:"id"`
	ModFliesszeitID uint `gorm:"column:mod_fliesszeit_id;index" json:"mod_fliesszeit_id"`
	ResultValues    `gorm:"embedded"`
}

// TableName specifies the table name for GORM
func (ModFliesszeitResult) TableName() string {
	return "mod_fliesszeit_result"
}

// Koella is a row of the glacier-aware Kölla method
type Koella struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ProjectID   string         `gorm:"not null;index" json:"project_id"`
	AnnualityID uint           `gorm:"column:x;not null" json:"x"`
	Annuality   Annuality      `gorm:"foreignKey:AnnualityID" json:"Annuality"`
	Vo20        float64        `gorm:"column:vo20" json:"Vo20"`
	GlacierArea float64        `gorm:"column:glacier_area" json:"glacier_area"`
	Results     []KoellaResult `gorm:"foreignKey:KoellaID" json:"Koella_Result"`
}

func (r Koella) GetID() uint          { return r.ID }
func (r Koella) GetAnnualityID() uint { return r.AnnualityID }

// TableName specifies the table name for GORM
func (Koella) TableName() string {
	return "koella"
}

// KoellaResult is written by the processing backend
type KoellaResult struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	KoellaID     uint `gorm:"column:koella_id;index" json:"koella_id"`
	ResultValues `gorm:"embedded"`
}

// TableName specifies the table name for GORM
func (KoellaResult) TableName() string {
	return "koella_result"
}

// ClarkWSL is a row of the unit-hydrograph method. Its parameters live in the
// Fractions child table.
type ClarkWSL struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	ProjectID   string           `gorm:"not null;index" json:"project_id"`
	AnnualityID uint             `gorm:"column:x;not null" json:"x"`
	Annuality   Annuality        `gorm:"foreignKey:AnnualityID" json:"Annuality"`
	Fractions   []Fraction       `gorm:"foreignKey:ClarkWSLID" json:"Fractions"`
	Results     []ClarkWSLResult `gorm:"foreignKey:ClarkWSLID" json:"ClarkWSL_Result"`
}

func (r ClarkWSL) GetID() uint          { return r.ID }
func (r ClarkWSL) GetAnnualityID() uint { return r.AnnualityID }

// TableName specifies the table name for GORM
func (ClarkWSL) TableName() string {
	return "clarkwsl"
}

// ClarkWSLResult is written by the processing backend
type ClarkWSLResult struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	ClarkWSLID   uint `gorm:"column:clarkwsl_id;index" json:"clarkwsl_id"`
	ResultValues `gorm:"embedded"`
}

// TableName specifies the table name for GORM
func (ClarkWSLResult) TableName() string {
	return "clarkwsl_result"
}

// Fraction is the share (percent) of one zone parameter type in a ClarkWSL row
type Fraction struct {
	ID               uint    `gorm:"primaryKey" json:"id"`
	ClarkWSLID       uint    `gorm:"column:clarkwsl_id;not null;index" json:"clarkwsl_id"`
	ZoneParameterTyp string  `gorm:"column:zone_parameter_typ;not null" json:"ZoneParameterTyp"`
	Pct              float64 `gorm:"column:pct" json:"pct"`
}

// TableName specifies the table name for GORM
func (Fraction) TableName() string {
	return "fractions"
}

// NAM is a row of the rainfall-runoff method. The mode columns reference the
// lookup tables by key.
type NAM struct {
	ID                  uint        `gorm:"primaryKey" json:"id"`
	ProjectID           string      `gorm:"not null;index" json:"project_id"`
	AnnualityID         uint        `gorm:"column:x;not null" json:"x"`
	Annuality           Annuality   `gorm:"foreignKey:AnnualityID" json:"Annuality"`
	PrecipitationFactor float64     `gorm:"column:precipitation_factor" json:"precipitation_factor"`
	ReadinessToDrain    float64     `gorm:"column:readiness_to_drain" json:"readiness_to_drain"`
	WaterBalanceMode    string      `gorm:"column:water_balance_mode;not null" json:"water_balance_mode"`
	StormCenterMode     string      `gorm:"column:storm_center_mode;not null" json:"storm_center_mode"`
	RoutingMethod       string      `gorm:"column:routing_method;not null" json:"routing_method"`
	Results             []NAMResult `gorm:"foreignKey:NAMID" json:"NAM_Result"`
}

func (r NAM) GetID() uint          { return r.ID }
func (r NAM) GetAnnualityID() uint { return r.AnnualityID }

// TableName specifies the table name for GORM
func (NAM) TableName() string {
	return "nam"
}

// NAMResult is written by the processing backend
type NAMResult struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	NAMID        uint `gorm:"column:nam_id;index" json:"nam_id"`
	ResultValues `gorm:"embedded"`
}

// TableName specifies the table name for GORM
func (NAMResult) TableName() string {
	return "nam_result"
}
