package repositories

import (
	"commission_backend/internal/models"

	"gorm.io/gorm"
)

type SettingsRepository interface {
	// GetSettings returns ErrSettingsNotFound when no admin has saved settings yet.
	GetSettings(db *gorm.DB) (*models.CommerceSettings, error)
	SaveSettings(db *gorm.DB, settings *models.CommerceSettings) error
}

type SettingsRepositoryImpl struct{}

func NewSettingsRepository() SettingsRepository {
	return &SettingsRepositoryImpl{}
}

func (r *SettingsRepositoryImpl) GetSettings(db *gorm.DB) (*models.CommerceSettings, error) {
	var settings models.CommerceSettings
	if err := db.First(&settings, "id = ?", models.CommerceSettingsID).Error; err != nil {
		return nil, notFound(err, ErrSettingsNotFound)
	}
	return &settings, nil
}

func (r *SettingsRepositoryImpl) SaveSettings(db *gorm.DB, settings *models.CommerceSettings) error {
	settings.ID = models.CommerceSettingsID
	return db.Save(settings).Error
}
