package models

import "github.com/shopspring/decimal"

type Package struct {
	BaseModel
	NameAr       string          `gorm:"not null" json:"nameAr"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Revisions    int             `gorm:"not null;default:0" json:"revisions"`
	DurationDays int             `gorm:"not null" json:"durationDays"`
	IsActive     bool            `gorm:"default:true" json:"isActive"`
}
