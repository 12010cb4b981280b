package repositories

import (
	"commission_backend/internal/models"

	"gorm.io/gorm"
)

type RevisionRequestRepository interface {
	CreateRevisionRequest(db *gorm.DB, request *models.RevisionRequest) error
	FindRevisionRequestsByOrder(db *gorm.DB, orderID string) ([]models.RevisionRequest, error)
}

type RevisionRequestRepositoryImpl struct{}

func NewRevisionRequestRepository() RevisionRequestRepository {
	return &RevisionRequestRepositoryImpl{}
}

func (r *RevisionRequestRepositoryImpl) CreateRevisionRequest(db *gorm.DB, request *models.RevisionRequest) error {
	return db.Create(request).Error
}

func (r *RevisionRequestRepositoryImpl) FindRevisionRequestsByOrder(db *gorm.DB, orderID string) ([]models.RevisionRequest, error) {
	var requests []models.RevisionRequest
	err := db.Where("order_id = ?", orderID).Order("created_at DESC").Find(&requests).Error
	return requests, err
}
