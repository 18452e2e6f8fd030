package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/Sujay0610/ReviewReap/internal/repository"
)

func createMessagesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_messages",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_messages_due ON messages (scheduled_at, created_at) WHERE status = 'QUEUED'`,
				`CREATE INDEX IF NOT EXISTS idx_messages_campaign_status ON messages (campaign_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_provider_msg_id ON messages (provider_msg_id) WHERE provider_msg_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_messages_org_id ON messages (org_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageModel{})
		},
	}
}
