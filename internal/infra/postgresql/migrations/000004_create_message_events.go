package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/Sujay0610/ReviewReap/internal/repository"
)

func createMessageEventsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_message_events",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageEventModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_message_events_message_created ON message_events (message_id, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageEventModel{})
		},
	}
}
