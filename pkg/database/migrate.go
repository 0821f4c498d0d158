package database

import (
	"gorm.io/gorm"

	"github.com/signalmesh/hermes/pkg/models"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Endpoint{},
		&models.NotificationHistory{},
		&models.EventDeduplication{},
		&models.AggregationOrgConfig{},
		&models.EmailAggregation{},
		&models.EmailSubscription{},
		&models.APIKey{},
	)
}
