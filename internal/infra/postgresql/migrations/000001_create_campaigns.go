package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/Sujay0610/ReviewReap/internal/repository"
)

func createCampaignsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_campaigns",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CampaignModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_campaigns_org_status ON campaigns (org_id, status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CampaignModel{})
		},
	}
}
