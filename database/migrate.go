package database

import (
	"fmt"

	"gorm.io/gorm"

	"commission_backend/internal/logger"
	"commission_backend/internal/models"
)

// Models lists every table the service owns.
var Models = []interface{}{
	&models.Package{},
	&models.Order{},
	&models.Payment{},
	&models.PaymentIdempotency{},
	&models.PinPackPurchase{},
	&models.Plan{},
	&models.RevisionRequest{},
	&models.CommerceSettings{},
	&models.Notification{},
}

// AutoMigrate creates or updates the tables from the gorm models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("AutoMigrate completed", "tables", len(Models))
	return nil
}
