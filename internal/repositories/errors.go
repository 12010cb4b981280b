package repositories

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")
	ErrDuplicateTransaction    = errors.New("transaction id already recorded")
	ErrPlanNotFound            = errors.New("plan not found")
	ErrPackageNotFound         = errors.New("package not found")
	ErrSettingsNotFound        = errors.New("commerce settings not found")
	ErrNotificationNotFound    = errors.New("notification not found")
)

// notFound replaces gorm.ErrRecordNotFound with the repository sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// duplicate replaces a unique violation with the repository sentinel.
// Requires the connection to be opened with TranslateError.
func duplicate(err, sentinel error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return sentinel
	}
	return err
}
