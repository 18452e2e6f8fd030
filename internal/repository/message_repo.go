package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Sujay0610/ReviewReap/internal/domain"
)

// openStatuses are the message states a campaign stop is allowed to cancel.
// Anything already handed to a provider is left untouched.
var openStatuses = []domain.MessageStatus{
	domain.MessageStatusPending,
	domain.MessageStatusQueued,
}

type MessageListParams struct {
	Status   *domain.MessageStatus
	Page     int
	PageSize int
}

type StatusCount struct {
	Status domain.MessageStatus `gorm:"column:status"`
	Count  int                  `gorm:"column:count"`
}

// MessageRepository persists messages. Status transitions are conditional
// single UPDATEs guarded by the expected current state (and retry count for
// reschedules); zero affected rows surfaces as domain.ErrConflict so a lost
// race or a duplicate webhook is a visible no-op instead of a lost update.
type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	CreateBatch(ctx context.Context, messages []*domain.Message) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Message, error)
	GetByProviderMessageID(ctx context.Context, providerMsgID string) (*domain.Message, error)
	ListByCampaign(ctx context.Context, orgID, campaignID string, params MessageListParams) ([]domain.Message, int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Message, error)
	PromotePending(ctx context.Context, orgID, campaignID string) ([]string, error)
	CancelOpen(ctx context.Context, orgID, campaignID string) ([]string, error)
	CountOpen(ctx context.Context, orgID, campaignID string) (int64, error)
	CountByStatus(ctx context.Context, orgID, campaignID string) ([]StatusCount, error)
	MarkSent(ctx context.Context, orgID, id, providerMsgID string, at time.Time) error
	Reschedule(ctx context.Context, orgID, id string, fromRetryCount int, at time.Time, errorMessage string) error
	MarkFailed(ctx context.Context, orgID, id string, from []domain.MessageStatus, at time.Time, errorMessage string) error
	MarkDelivered(ctx context.Context, orgID, id string, at time.Time) error
	MarkRead(ctx context.Context, orgID, id string, at time.Time) error
}

type GormMessageRepo struct {
	db *gorm.DB
}

func NewGormMessageRepo(db *gorm.DB) *GormMessageRepo {
	return &GormMessageRepo{db: db}
}

func (r *GormMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	model := messageModelFromDomain(m)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if m != nil {
		*m = *messageModelToDomain(model)
	}
	return nil
}

func (r *GormMessageRepo) CreateBatch(ctx context.Context, messages []*domain.Message) error {
	models := make([]MessageModel, 0, len(messages))
	modelIndexes := make([]int, 0, len(messages))
	for i, m := range messages {
		model := messageModelFromDomain(m)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(messages) && messages[idx] != nil {
			*messages[idx] = *messageModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormMessageRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return messageModelToDomain(&model), nil
}

// GetByProviderMessageID is unscoped: provider webhooks carry no org. The
// returned message's own OrgID scopes every follow-up write.
func (r *GormMessageRepo) GetByProviderMessageID(ctx context.Context, providerMsgID string) (*domain.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).
		Where("provider_msg_id = ?", providerMsgID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return messageModelToDomain(&model), nil
}

func (r *GormMessageRepo) ListByCampaign(ctx context.Context, orgID, campaignID string, params MessageListParams) ([]domain.Message, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("org_id = ? AND campaign_id = ?", orgID, campaignID)

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []MessageModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *messageModelToDomain(&models[i]))
	}

	return messages, total, nil
}

func (r *GormMessageRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	var models []MessageModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND (scheduled_at IS NULL OR scheduled_at <= ?)", domain.MessageStatusQueued, now).
		Order("scheduled_at ASC NULLS FIRST, created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *messageModelToDomain(&models[i]))
	}

	return messages, nil
}

func (r *GormMessageRepo) PromotePending(ctx context.Context, orgID, campaignID string) ([]string, error) {
	return r.bulkTransition(ctx, orgID, campaignID,
		[]domain.MessageStatus{domain.MessageStatusPending},
		domain.MessageStatusQueued)
}

func (r *GormMessageRepo) CancelOpen(ctx context.Context, orgID, campaignID string) ([]string, error) {
	return r.bulkTransition(ctx, orgID, campaignID, openStatuses, domain.MessageStatusCancelled)
}

func (r *GormMessageRepo) bulkTransition(ctx context.Context, orgID, campaignID string, from []domain.MessageStatus, to domain.MessageStatus) ([]string, error) {
	var models []MessageModel
	result := r.db.WithContext(ctx).
		Model(&models).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("org_id = ? AND campaign_id = ? AND status IN ?", orgID, campaignID, from).
		Update("status", to)
	if result.Error != nil {
		return nil, result.Error
	}

	ids := make([]string, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}

	return ids, nil
}

func (r *GormMessageRepo) CountOpen(ctx context.Context, orgID, campaignID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("org_id = ? AND campaign_id = ? AND status IN ?", orgID, campaignID, openStatuses).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormMessageRepo) CountByStatus(ctx context.Context, orgID, campaignID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Select("status, COUNT(*) as count").
		Where("org_id = ? AND campaign_id = ?", orgID, campaignID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormMessageRepo) MarkSent(ctx context.Context, orgID, id, providerMsgID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgID, domain.MessageStatusQueued).
		Updates(map[string]any{
			"status":          domain.MessageStatusSent,
			"sent_at":         at,
			"provider_msg_id": providerMsgID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormMessageRepo) Reschedule(ctx context.Context, orgID, id string, fromRetryCount int, at time.Time, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND org_id = ? AND status = ? AND retry_count = ?",
			id, orgID, domain.MessageStatusQueued, fromRetryCount).
		Updates(map[string]any{
			"scheduled_at":  at,
			"retry_count":   fromRetryCount + 1,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormMessageRepo) MarkFailed(ctx context.Context, orgID, id string, from []domain.MessageStatus, at time.Time, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND org_id = ? AND status IN ?", id, orgID, from).
		Updates(map[string]any{
			"status":        domain.MessageStatusFailed,
			"failed_at":     gorm.Expr("COALESCE(failed_at, ?)", at),
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormMessageRepo) MarkDelivered(ctx context.Context, orgID, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgID, domain.MessageStatusSent).
		Updates(map[string]any{
			"status":       domain.MessageStatusDelivered,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormMessageRepo) MarkRead(ctx context.Context, orgID, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND org_id = ? AND status IN ?", id, orgID,
			[]domain.MessageStatus{domain.MessageStatusSent, domain.MessageStatusDelivered}).
		Updates(map[string]any{
			"status":       domain.MessageStatusRead,
			"read_at":      gorm.Expr("COALESCE(read_at, ?)", at),
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
