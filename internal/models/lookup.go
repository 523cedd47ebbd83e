package models

// ZoneParameter is one discharge type a ClarkWSL row is broken down into
type ZoneParameter struct {
	Typ         string  `gorm:"primaryKey" json:"typ"`
	Description string  `json:"description"`
	SortOrder   int     `gorm:"not null;default:0" json:"sort_order"`
	WSV         float64 `gorm:"column:wsv" json:"WSV"`
	Psi         float64 `gorm:"column:psi" json:"psi"`
}

// TableName specifies the table name for GORM
func (ZoneParameter) TableName() string {
	return "zone_parameters"
}

// WaterBalanceMode is a lookup row referenced by NAM.WaterBalanceMode
type WaterBalanceMode struct {
	Mode        string `gorm:"primaryKey" json:"mode"`
	Description string `json:"description"`
}

// TableName specifies the table name for GORM
func (WaterBalanceMode) TableName() string {
	return "water_balance_modes"
}

// StormCenterMode is a lookup row referenced by NAM.StormCenterMode
type StormCenterMode struct {
	Mode        string `gorm:"primaryKey" json:"mode"`
	Description string `json:"description"`
}

// TableName specifies the table name for GORM
func (StormCenterMode) TableName() string {
	return "storm_center_modes"
}

// RoutingMethod is a lookup row referenced by NAM.RoutingMethod
type RoutingMethod struct {
	Method      string `gorm:"primaryKey" json:"method"`
	Description string `json:"description"`
}

// TableName specifies the table name for GORM
func (RoutingMethod) TableName() string {
	return "routing_methods"
}

// Defaults applied when a NAM write omits a mode
const (
	DefaultWaterBalanceMode    = "cumulative"
	DefaultStormCenterMode     = "centroid"
	DefaultRoutingMethod       = "time_values"
	DefaultPrecipitationFactor = 0.7
)
