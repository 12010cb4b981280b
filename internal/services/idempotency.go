package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"commission_backend/internal/models"
	"commission_backend/internal/repositories"
	"commission_backend/pkg/apperrors"
)

const maxIdempotencyKeyLength = 128

// IdempotencyGuard maps client keys to the initial payment they produced.
// Mappings older than the TTL are ignored and overwritten on reuse.
type IdempotencyGuard struct {
	paymentRepo repositories.PaymentRepository
	ttl         time.Duration
	now         func() time.Time
}

func NewIdempotencyGuard(paymentRepo repositories.PaymentRepository, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{paymentRepo: paymentRepo, ttl: ttl, now: time.Now}
}

// Lookup returns the payment a fresh mapping points at, or nil when the key is unknown or stale.
func (g *IdempotencyGuard) Lookup(db *gorm.DB, key, orderID string) (*models.Payment, error) {
	record, err := g.paymentRepo.FindIdempotencyKey(db, key)
	if errors.Is(err, repositories.ErrIdempotencyKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !record.IsFresh(g.now(), g.ttl) {
		return nil, nil
	}
	if record.OrderID != orderID {
		return nil, apperrors.ErrIdempotencyKeyReused
	}

	payment, err := g.paymentRepo.FindPaymentByID(db, record.PaymentID)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Record stores the mapping inside the payment transaction. A concurrent
// insert of the same key surfaces as repositories.ErrDuplicateIdempotencyKey.
func (g *IdempotencyGuard) Record(tx *gorm.DB, key, orderID, paymentID string) error {
	record := &models.PaymentIdempotency{
		Key:       key,
		OrderID:   orderID,
		PaymentID: paymentID,
		CreatedAt: g.now(),
	}

	existing, err := g.paymentRepo.FindIdempotencyKey(tx, key)
	switch {
	case errors.Is(err, repositories.ErrIdempotencyKeyNotFound):
		return g.paymentRepo.CreateIdempotencyKey(tx, record)
	case err != nil:
		return err
	case existing.IsFresh(g.now(), g.ttl):
		return repositories.ErrDuplicateIdempotencyKey
	default:
		return g.paymentRepo.UpdateIdempotencyKey(tx, record)
	}
}

// Resolve re-reads the mapping after losing an insert race and returns the winner's payment.
func (g *IdempotencyGuard) Resolve(db *gorm.DB, key, orderID string) (*models.Payment, error) {
	payment, err := g.Lookup(db, key, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperrors.ErrAlreadyPaid
	}
	return payment, nil
}
