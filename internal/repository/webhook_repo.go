package repository

import (
	"context"
	"time"

	"casalar/internal/model"

	"gorm.io/gorm"
)

type WebhookRepository interface {
	Create(ctx context.Context, e *model.WebhookEvento) error
	Update(ctx context.Context, e *model.WebhookEvento) error
	// ListPendentesRetry returns events scheduled for redelivery at or before now.
	ListPendentesRetry(ctx context.Context, agora time.Time, limit int) ([]model.WebhookEvento, error)
}

type webhookRepo struct{ db *gorm.DB }

func NewWebhookRepository(db *gorm.DB) WebhookRepository { return &webhookRepo{db: db} }

func (r *webhookRepo) Create(ctx context.Context, e *model.WebhookEvento) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *webhookRepo) Update(ctx context.Context, e *model.WebhookEvento) error {
	return r.db.WithContext(ctx).Save(e).Error
}

func (r *webhookRepo) ListPendentesRetry(ctx context.Context, agora time.Time, limit int) ([]model.WebhookEvento, error) {
	var eventos []model.WebhookEvento
	err := r.db.WithContext(ctx).
		Where("status = 'recebido'").
		Where("proxima_tentativa IS NOT NULL AND proxima_tentativa <= ?", agora).
		Order("proxima_tentativa ASC").
		Limit(limit).
		Find(&eventos).Error
	return eventos, err
}
