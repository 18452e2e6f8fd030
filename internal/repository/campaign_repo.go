package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

// CampaignRepository persists campaigns. Every query is scoped by the owning
// organization; the Mark* transitions are conditional single UPDATEs that
// report domain.ErrConflict when the row is not in the expected state, which
// makes concurrent callers lose the race instead of double-applying.
type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Campaign, error)
	MarkScheduled(ctx context.Context, orgID, id string, at time.Time) error
	MarkStarted(ctx context.Context, orgID, id string, at time.Time) error
	MarkPaused(ctx context.Context, orgID, id string) error
	MarkResumed(ctx context.Context, orgID, id string) error
	MarkCancelled(ctx context.Context, orgID, id string, at time.Time) error
	MarkCompleted(ctx context.Context, orgID, id string, at time.Time) error
}

type GormCampaignRepo struct {
	db *gorm.DB
}

func NewGormCampaignRepo(db *gorm.DB) *GormCampaignRepo {
	return &GormCampaignRepo{db: db}
}

func (r *GormCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	model := campaignModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *campaignModelToDomain(model)
	}
	return nil
}

func (r *GormCampaignRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return campaignModelToDomain(&model), nil
}

func (r *GormCampaignRepo) MarkScheduled(ctx context.Context, orgID, id string, at time.Time) error {
	return r.transition(ctx, orgID, id,
		[]domain.CampaignStatus{domain.CampaignStatusDraft},
		map[string]any{
			"status":       domain.CampaignStatusScheduled,
			"scheduled_at": at,
		})
}

func (r *GormCampaignRepo) MarkStarted(ctx context.Context, orgID, id string, at time.Time) error {
	return r.transition(ctx, orgID, id,
		[]domain.CampaignStatus{domain.CampaignStatusDraft, domain.CampaignStatusScheduled},
		map[string]any{
			"status":     domain.CampaignStatusActive,
			"started_at": at,
		})
}

func (r *GormCampaignRepo) MarkPaused(ctx context.Context, orgID, id string) error {
	return r.transition(ctx, orgID, id,
		[]domain.CampaignStatus{domain.CampaignStatusActive},
		map[string]any{
			"status": domain.CampaignStatusPaused,
		})
}

func (r *GormCampaignRepo) MarkResumed(ctx context.Context, orgID, id string) error {
	return r.transition(ctx, orgID, id,
		[]domain.CampaignStatus{domain.CampaignStatusPaused},
		map[string]any{
			"status": domain.CampaignStatusActive,
		})
}

func (r *GormCampaignRepo) MarkCancelled(ctx context.Context, orgID, id string, at time.Time) error {
	return r.transition(ctx, orgID, id,
		[]domain.CampaignStatus{
			domain.CampaignStatusDraft,
			domain.CampaignStatusScheduled,
			domain.CampaignStatusActive,
			domain.CampaignStatusPaused,
		},
		map[string]any{
			"status":       domain.CampaignStatusCancelled,
			"completed_at": at,
		})
}

func (r *GormCampaignRepo) MarkCompleted(ctx context.Context, orgID, id string, at time.Time) error {
	return r.transition(ctx, orgID, id,
		[]domain.CampaignStatus{domain.CampaignStatusActive},
		map[string]any{
			"status":       domain.CampaignStatusCompleted,
			"completed_at": at,
		})
}

func (r *GormCampaignRepo) transition(ctx context.Context, orgID, id string, from []domain.CampaignStatus, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&CampaignModel{}).
		Where("id = ? AND org_id = ? AND status IN ?", id, orgID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
