package models

import "fmt"

// Annuality is a return period (in years) shared by every project.
// Rows are created lazily and never modified once referenced.
type Annuality struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Number      float64 `gorm:"uniqueIndex;not null" json:"number"`
	Description string  `json:"description"`
}

// TableName specifies the table name for GORM
func (Annuality) TableName() string {
	return "annualities"
}

// DefaultAnnualityDescription is used when an annuality is created lazily
func DefaultAnnualityDescription(number float64) string {
	return fmt.Sprintf("HQ %g", number)
}
