package repositories

import (
	"commission_backend/internal/models"

	"gorm.io/gorm"
)

type PinPackRepository interface {
	CreatePinPackPurchase(db *gorm.DB, purchase *models.PinPackPurchase) error
	CountCompletedPinPacks(db *gorm.DB, orderID string) (int64, error)
	FindPinPacksByOrder(db *gorm.DB, orderID string) ([]models.PinPackPurchase, error)
}

type PinPackRepositoryImpl struct{}

func NewPinPackRepository() PinPackRepository {
	return &PinPackRepositoryImpl{}
}

func (r *PinPackRepositoryImpl) CreatePinPackPurchase(db *gorm.DB, purchase *models.PinPackPurchase) error {
	return duplicate(db.Create(purchase).Error, ErrDuplicateTransaction)
}

func (r *PinPackRepositoryImpl) CountCompletedPinPacks(db *gorm.DB, orderID string) (int64, error) {
	var count int64
	err := db.Model(&models.PinPackPurchase{}).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusCompleted).
		Count(&count).Error
	return count, err
}

func (r *PinPackRepositoryImpl) FindPinPacksByOrder(db *gorm.DB, orderID string) ([]models.PinPackPurchase, error) {
	var purchases []models.PinPackPurchase
	err := db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&purchases).Error
	return purchases, err
}
