package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Point is the location a project is anchored to (LV95 northing/easting)
type Point struct {
	ID       string  `gorm:"primaryKey" json:"id"`
	Northing float64 `gorm:"not null" json:"northing"`
	Easting  float64 `gorm:"not null" json:"easting"`
}

// BeforeCreate hook to generate UUID before creating record
func (p *Point) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Point) TableName() string {
	return "points"
}

// IDFParameters holds the intensity-duration-frequency curve anchors of a project
type IDFParameters struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	PLow1h   float64 `gorm:"column:p_low_1h" json:"P_low_1h"`
	PHigh1h  float64 `gorm:"column:p_high_1h" json:"P_high_1h"`
	PLow24h  float64 `gorm:"column:p_low_24h" json:"P_low_24h"`
	PHigh24h float64 `gorm:"column:p_high_24h" json:"P_high_24h"`
	RpLow    float64 `gorm:"column:rp_low" json:"rp_low"`
	RpHigh   float64 `gorm:"column:rp_high" json:"rp_high"`
}

// TableName specifies the table name for GORM
func (IDFParameters) TableName() string {
	return "idf_parameters"
}

// Project is the aggregate root owning the location, the IDF parameters and all
// calculation method rows.
type Project struct {
	ID              string         `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"not null" json:"title"`
	Description     string         `json:"description"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	PointID         string         `gorm:"not null" json:"point_id"`
	Point           Point          `gorm:"foreignKey:PointID" json:"Point"`
	IDFParametersID *uint          `gorm:"column:idf_parameters_id" json:"idf_parameters_id"`
	IDFParameters   *IDFParameters `gorm:"foreignKey:IDFParametersID" json:"IDF_Parameters"`
	CatchmentArea   float64        `json:"catchment_area"`
	ChannelLength   float64        `json:"channel_length"`
	DeltaH          float64        `gorm:"column:delta_h" json:"delta_h"`
	IsozonesTaskID  string         `gorm:"column:isozones_taskid" json:"isozones_taskid"`

	ModFliesszeit []ModFliesszeit `gorm:"foreignKey:ProjectID" json:"Mod_Fliesszeit"`
	Koella        []Koella        `gorm:"foreignKey:ProjectID" json:"Koella"`
	ClarkWSL      []ClarkWSL      `gorm:"foreignKey:ProjectID" json:"ClarkWSL"`
	NAM           []NAM           `gorm:"foreignKey:ProjectID" json:"NAM"`

	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `gorm:"autoUpdateTime" json:"lastModified"`
}

// BeforeCreate hook to generate UUID before creating record
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Project) TableName() string {
	return "projects"
}

// ProjectView is the fully loaded project aggregate returned by every mutating
// scenario operation. Zones lists the fraction columns in display order.
type ProjectView struct {
	Project
	Zones []ZoneParameter `json:"zones"`
}
