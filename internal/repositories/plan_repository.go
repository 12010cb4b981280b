package repositories

import (
	"time"

	"commission_backend/internal/models"

	"gorm.io/gorm"
)

type PlanRepository interface {
	CreatePlan(db *gorm.DB, plan *models.Plan) error
	FindPlanByID(db *gorm.DB, id string) (*models.Plan, error)
	FindPlansByOrder(db *gorm.DB, orderID string) ([]models.Plan, error)
	// FindActivePlans returns active, unpurged plans oldest first.
	FindActivePlans(db *gorm.DB, orderID string) ([]models.Plan, error)
	CountActivePlans(db *gorm.DB, orderID string) (int64, error)
	UpdatePlan(db *gorm.DB, plan *models.Plan) error
	// TombstonePlans marks every unpurged plan of the order as purged and returns
	// the file URLs that were cleared.
	TombstonePlans(db *gorm.DB, orderID string, purgedAt time.Time) ([]string, error)
}

type PlanRepositoryImpl struct{}

func NewPlanRepository() PlanRepository {
	return &PlanRepositoryImpl{}
}

func (r *PlanRepositoryImpl) CreatePlan(db *gorm.DB, plan *models.Plan) error {
	return db.Create(plan).Error
}

func (r *PlanRepositoryImpl) FindPlanByID(db *gorm.DB, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := db.First(&plan, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrPlanNotFound)
	}
	return &plan, nil
}

func (r *PlanRepositoryImpl) FindPlansByOrder(db *gorm.DB, orderID string) ([]models.Plan, error) {
	var plans []models.Plan
	err := db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&plans).Error
	return plans, err
}

func (r *PlanRepositoryImpl) FindActivePlans(db *gorm.DB, orderID string) ([]models.Plan, error) {
	var plans []models.Plan
	err := db.Where("order_id = ? AND is_active = ? AND purged_at IS NULL", orderID, true).
		Order("created_at ASC, id ASC").
		Find(&plans).Error
	return plans, err
}

func (r *PlanRepositoryImpl) CountActivePlans(db *gorm.DB, orderID string) (int64, error) {
	var count int64
	err := db.Model(&models.Plan{}).
		Where("order_id = ? AND is_active = ? AND purged_at IS NULL", orderID, true).
		Count(&count).Error
	return count, err
}

func (r *PlanRepositoryImpl) UpdatePlan(db *gorm.DB, plan *models.Plan) error {
	return db.Save(plan).Error
}

func (r *PlanRepositoryImpl) TombstonePlans(db *gorm.DB, orderID string, purgedAt time.Time) ([]string, error) {
	var urls []string
	err := db.Model(&models.Plan{}).
		Where("order_id = ? AND purged_at IS NULL AND file_url <> ''", orderID).
		Pluck("file_url", &urls).Error
	if err != nil {
		return nil, err
	}

	err = db.Model(&models.Plan{}).
		Where("order_id = ? AND purged_at IS NULL", orderID).
		Updates(map[string]interface{}{
			"purged_at": purgedAt,
			"file_url":  "",
		}).Error
	if err != nil {
		return nil, err
	}
	return urls, nil
}
