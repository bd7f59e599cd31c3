package database

import (
	"fmt"

	"github.com/nukevideo/nukevideo/internal/models"
)

// Migrate runs GORM auto-migration for all nukevideo models.
func (db *DB) Migrate() error {
	if err := db.DB.AutoMigrate(
		&models.Template{},
		&models.Node{},
		&models.MediaItem{},
		&models.Stream{},
		&models.Job{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
