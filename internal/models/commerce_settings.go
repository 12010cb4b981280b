package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommerceSettingsID is the primary key of the single settings row.
const CommerceSettingsID = 1

// CommerceSettings holds admin overrides. Nil fields fall back to configured defaults.
type CommerceSettings struct {
	ID                      int                 `gorm:"primaryKey" json:"-"`
	PricePerRevision        decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"pricePerRevision"`
	ExtensionPrice          decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"extensionPrice"`
	MaxRevisionsPerPurchase *int                `json:"maxRevisionsPerPurchase"`
	PinPackPrice            decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"pinPackPrice"`
	PinPackOldPrice         decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"pinPackOldPrice"`
	PinPackDiscountPercent  *int                `json:"pinPackDiscountPercent"`
	UpdatedBy               *string             `gorm:"type:uuid" json:"updatedBy,omitempty"`
	UpdatedAt               time.Time           `json:"updatedAt"`
}
