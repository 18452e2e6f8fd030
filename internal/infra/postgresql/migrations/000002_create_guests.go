package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/Sujay0610/ReviewReap/internal/repository"
)

func createGuestsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_guests",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.GuestModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_guests_org_id ON guests (org_id)`,
				`CREATE INDEX IF NOT EXISTS idx_guests_campaign_id ON guests (campaign_id) WHERE campaign_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.GuestModel{})
		},
	}
}
