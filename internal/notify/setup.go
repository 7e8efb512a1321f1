package notify

import (
	"fmt"

	"github.com/lumra/lumra-backend/internal/db"
	"gorm.io/gorm"
)

func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, db.Schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", db.Schema, err)
	}
	if err := d.AutoMigrate(&DeliveryFailure{}); err != nil {
		return fmt.Errorf("auto-migrate delivery_failures: %w", err)
	}
	return nil
}
