package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	BaseModel
	OrderID       string          `gorm:"type:uuid;not null;index" json:"orderId"`
	Kind          PaymentKind     `gorm:"type:varchar(20);not null" json:"kind"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Method        PaymentMethod   `gorm:"type:varchar(20)" json:"method,omitempty"`
	Status        PaymentStatus   `gorm:"type:varchar(20);default:'pending'" json:"status"`
	TransactionID string          `gorm:"uniqueIndex;not null" json:"transactionId"`
	RevisionCount int             `gorm:"default:0" json:"revisionCount,omitempty"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
}

func (p *Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// PaymentIdempotency maps a client supplied key to the payment it produced.
type PaymentIdempotency struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	OrderID   string    `gorm:"type:uuid;not null;index" json:"orderId"`
	PaymentID string    `gorm:"type:uuid;not null" json:"paymentId"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

func (PaymentIdempotency) TableName() string {
	return "payment_idempotency"
}

// IsFresh reports whether the mapping is still honoured at now.
func (p *PaymentIdempotency) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) < ttl
}

type PinPackPurchase struct {
	BaseModel
	OrderID       string          `gorm:"type:uuid;not null;index" json:"orderId"`
	ClientID      string          `gorm:"type:uuid;not null" json:"clientId"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Status        PaymentStatus   `gorm:"type:varchar(20);default:'completed'" json:"status"`
	TransactionID string          `gorm:"uniqueIndex;not null" json:"transactionId"`
}
