package db

import (
	"fmt"

	"github.com/davisfield/switchboard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models that make up the store schema.
func AllModels() []interface{} {
	return []interface{}{
		&models.Message{},
	}
}

// AutoMigrate creates or updates the store tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
