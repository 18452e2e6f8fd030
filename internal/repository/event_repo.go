package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

// EventRepository appends to the message_events audit trail. There are no
// update or delete operations; the table is write-once.
type EventRepository interface {
	Append(ctx context.Context, e *domain.MessageEvent) error
	AppendBatch(ctx context.Context, events []*domain.MessageEvent) error
	ListByMessage(ctx context.Context, messageID string) ([]domain.MessageEvent, error)
}

type GormEventRepo struct {
	db *gorm.DB
}

func NewGormEventRepo(db *gorm.DB) *GormEventRepo {
	return &GormEventRepo{db: db}
}

func (r *GormEventRepo) Append(ctx context.Context, e *domain.MessageEvent) error {
	model := eventModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *eventModelToDomain(model)
	}
	return nil
}

func (r *GormEventRepo) AppendBatch(ctx context.Context, events []*domain.MessageEvent) error {
	models := make([]MessageEventModel, 0, len(events))
	for _, e := range events {
		model := eventModelFromDomain(e)
		if model != nil {
			models = append(models, *model)
		}
	}

	if len(models) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).CreateInBatches(&models, 100).Error
}

func (r *GormEventRepo) ListByMessage(ctx context.Context, messageID string) ([]domain.MessageEvent, error) {
	var models []MessageEventModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.MessageEvent, 0, len(models))
	for i := range models {
		events = append(events, *eventModelToDomain(&models[i]))
	}

	return events, nil
}
