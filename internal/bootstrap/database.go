package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"docflow/internal/models"
)

// Migrate ensures the schema exists. No seed rows; clients arrive via the API.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Client{},
		&models.CronJob{},
		&models.WorkflowRun{},
	); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}
