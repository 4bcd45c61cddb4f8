package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
)

// EventLog stores received webhook deliveries. repository.WebhookEventRepository
// satisfies it.
type EventLog interface {
	CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	Claim(ctx context.Context, id uint, staleBefore time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id uint, handled bool, processingError string) error
}
