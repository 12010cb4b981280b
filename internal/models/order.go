package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the aggregate root. Status, counters and deadline are only changed
// by the services while the row is locked.
type Order struct {
	BaseModel
	OrderNumber        string          `gorm:"uniqueIndex;not null" json:"orderNumber"`
	Status             OrderStatus     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ClientID           string          `gorm:"type:uuid;not null;index" json:"clientId"`
	EngineerID         *string         `gorm:"type:uuid;index" json:"engineerId,omitempty"`
	PackageID          string          `gorm:"type:uuid;not null" json:"packageId"`
	PackageNameAr      string          `gorm:"not null" json:"packageNameAr"`
	PackagePrice       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"packagePrice"`
	RemainingRevisions int             `gorm:"not null;default:0" json:"remainingRevisions"`
	Deadline           time.Time       `gorm:"not null;index" json:"deadline"`

	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	PlansPurgedAt         *time.Time `json:"plansPurgedAt,omitempty"`
	ArchivedWarningSentAt *time.Time `json:"archivedWarningSentAt,omitempty"`
	// ReactivatedAt is the last time the order left ARCHIVED.
	ReactivatedAt *time.Time `json:"reactivatedAt,omitempty"`
}

func (o *Order) IsAssignedEngineer(userID string) bool {
	return o.EngineerID != nil && *o.EngineerID == userID
}

// Reactivate records that the order was brought back from ARCHIVED at now.
func (o *Order) Reactivate(now time.Time) {
	o.ReactivatedAt = &now
}

// Expired reports whether the deadline passed with no reactivation after it.
// An order reactivated while still past its deadline stays open until a later
// deadline passes.
func (o *Order) Expired(now time.Time) bool {
	if !o.Deadline.Before(now) {
		return false
	}
	return o.ReactivatedAt == nil || o.ReactivatedAt.Before(o.Deadline)
}

// ExtendDeadline pushes the deadline forward by whole days.
func (o *Order) ExtendDeadline(days int) {
	o.Deadline = o.Deadline.Add(time.Duration(days) * 24 * time.Hour)
}

// ApplyPackage snapshots pkg onto the order and recomputes the allowance from now.
func (o *Order) ApplyPackage(pkg *Package, now time.Time) {
	o.PackageID = pkg.ID
	o.PackageNameAr = pkg.NameAr
	o.PackagePrice = pkg.Price
	o.RemainingRevisions = pkg.Revisions
	o.Deadline = now.Add(time.Duration(pkg.DurationDays) * 24 * time.Hour)
}
