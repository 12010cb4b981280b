package repositories

import (
	"commission_backend/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	CreatePayment(db *gorm.DB, payment *models.Payment) error
	UpdatePayment(db *gorm.DB, payment *models.Payment) error
	FindPaymentByID(db *gorm.DB, id string) (*models.Payment, error)
	// FindFirstPayment returns the earliest payment of the order, which gates the initial payment.
	FindFirstPayment(db *gorm.DB, orderID string) (*models.Payment, error)
	FindPaymentsByOrder(db *gorm.DB, orderID string) ([]models.Payment, error)

	// Idempotency keys
	FindIdempotencyKey(db *gorm.DB, key string) (*models.PaymentIdempotency, error)
	CreateIdempotencyKey(db *gorm.DB, record *models.PaymentIdempotency) error
	UpdateIdempotencyKey(db *gorm.DB, record *models.PaymentIdempotency) error
}

type PaymentRepositoryImpl struct{}

func NewPaymentRepository() PaymentRepository {
	return &PaymentRepositoryImpl{}
}

func (r *PaymentRepositoryImpl) CreatePayment(db *gorm.DB, payment *models.Payment) error {
	return duplicate(db.Create(payment).Error, ErrDuplicateTransaction)
}

func (r *PaymentRepositoryImpl) UpdatePayment(db *gorm.DB, payment *models.Payment) error {
	return duplicate(db.Save(payment).Error, ErrDuplicateTransaction)
}

func (r *PaymentRepositoryImpl) FindPaymentByID(db *gorm.DB, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.First(&payment, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	return &payment, nil
}

func (r *PaymentRepositoryImpl) FindFirstPayment(db *gorm.DB, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := db.Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		First(&payment).Error
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	return &payment, nil
}

func (r *PaymentRepositoryImpl) FindPaymentsByOrder(db *gorm.DB, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepositoryImpl) FindIdempotencyKey(db *gorm.DB, key string) (*models.PaymentIdempotency, error) {
	var record models.PaymentIdempotency
	if err := db.First(&record, "key = ?", key).Error; err != nil {
		return nil, notFound(err, ErrIdempotencyKeyNotFound)
	}
	return &record, nil
}

func (r *PaymentRepositoryImpl) CreateIdempotencyKey(db *gorm.DB, record *models.PaymentIdempotency) error {
	return duplicate(db.Create(record).Error, ErrDuplicateIdempotencyKey)
}

func (r *PaymentRepositoryImpl) UpdateIdempotencyKey(db *gorm.DB, record *models.PaymentIdempotency) error {
	return db.Save(record).Error
}
