package database

import (
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Profile{},
		&models.Notification{},
		&models.NotificationPreference{},
		&models.SystemSetting{},
	)
}
