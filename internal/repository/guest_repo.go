package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

// GuestRepository reads guests. Guest CRUD is owned by the surrounding
// application; the engine only needs lookups to resolve destinations and
// the per-campaign fan-out on schedule.
type GuestRepository interface {
	Create(ctx context.Context, g *domain.Guest) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Guest, error)
	ListByCampaign(ctx context.Context, orgID, campaignID string) ([]domain.Guest, error)
}

type GormGuestRepo struct {
	db *gorm.DB
}

func NewGormGuestRepo(db *gorm.DB) *GormGuestRepo {
	return &GormGuestRepo{db: db}
}

func (r *GormGuestRepo) Create(ctx context.Context, g *domain.Guest) error {
	model := guestModelFromDomain(g)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if g != nil {
		*g = *guestModelToDomain(model)
	}
	return nil
}

func (r *GormGuestRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Guest, error) {
	var model GuestModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return guestModelToDomain(&model), nil
}

func (r *GormGuestRepo) ListByCampaign(ctx context.Context, orgID, campaignID string) ([]domain.Guest, error) {
	var models []GuestModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND campaign_id = ?", orgID, campaignID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	guests := make([]domain.Guest, 0, len(models))
	for i := range models {
		guests = append(guests, *guestModelToDomain(&models[i]))
	}

	return guests, nil
}
