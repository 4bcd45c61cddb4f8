package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a webhook delivery log backed by GORM.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists inserts the event unless (provider, provider_event_id)
// is already stored. It returns whether a row was created and the stored row.
func (r *webhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, translateError(err)
	}
	return created, &stored, nil
}

// Claim marks an unprocessed event as being dispatched. It fails when another
// worker holds a claim newer than staleBefore or the event is already processed.
func (r *webhookEventRepository) Claim(ctx context.Context, id uint, staleBefore time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Where("claimed_at IS NULL OR claimed_at < ?", staleBefore).
		Update("claimed_at", time.Now())
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, handled bool, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"handled":          handled,
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
