package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ManuelReschke/SubFox/app/models"
)

const providerName = models.BillingProviderStripe

// Service orchestrates subscription reconciliation, checkout and webhook
// handling on top of a payment provider Gateway.
type Service struct {
	gateway    Gateway
	events     EventLog
	dispatcher *Dispatcher
	validate   *validator.Validate
	newKey     func() string
}

// NewService creates a billing service. events may be nil, in which case
// webhook deliveries are not recorded.
func NewService(gateway Gateway, events EventLog) *Service {
	return &Service{
		gateway:    gateway,
		events:     events,
		dispatcher: NewDispatcher(),
		validate:   newValidator(),
		newKey:     uuid.NewString,
	}
}

// Gateway returns the provider adapter used by the service.
func (s *Service) Gateway() Gateway {
	return s.gateway
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return Currency(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("interval", func(fl validator.FieldLevel) bool {
		return RecurringInterval(fl.Field().String()).Valid()
	})
	return v
}

// WebhookEventInput is one received delivery before it is dispatched.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists webhook payloads idempotently. created is
// false when the same delivery was stored before.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	if s.events == nil {
		return true, &models.BillingWebhookEvent{}, nil
	}
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.events.CreateIfNotExists(ctx, event)
}

// claimWebhookEvent reserves a recorded event for dispatch.
func (s *Service) claimWebhookEvent(ctx context.Context, webhookEventID uint) (bool, error) {
	if s.events == nil {
		return true, nil
	}
	return s.events.Claim(ctx, webhookEventID, time.Now().Add(-webhookClaimTimeout))
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, handled bool, processingErr error) error {
	if s.events == nil {
		return nil
	}
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(ctx, webhookEventID, handled, errMsg)
}
