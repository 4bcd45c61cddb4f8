package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// webhookClaimTimeout is how long a dispatch may hold a delivery before a
// redelivery is allowed to take it over.
const webhookClaimTimeout = 5 * time.Minute

// EventKind is the closed set of webhook event types the service reacts to.
type EventKind string

const (
	EventCheckoutSessionCompleted    EventKind = "checkout.session.completed"
	EventCustomerSubscriptionUpdated EventKind = "customer.subscription.updated"
	EventCustomerSubscriptionDeleted EventKind = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded     EventKind = "invoice.payment_succeeded"
	EventInvoicePaymentFailed        EventKind = "invoice.payment_failed"
	EventUnknown                     EventKind = ""
)

// ParseEventKind maps a provider event type onto EventKind.
func ParseEventKind(eventType string) EventKind {
	switch k := EventKind(eventType); k {
	case EventCheckoutSessionCompleted,
		EventCustomerSubscriptionUpdated,
		EventCustomerSubscriptionDeleted,
		EventInvoicePaymentSucceeded,
		EventInvoicePaymentFailed:
		return k
	default:
		return EventUnknown
	}
}

type checkoutSessionObject struct {
	ID            string `json:"id"`
	Mode          string `json:"mode"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	Subscription  string `json:"subscription"`
	PaymentStatus string `json:"payment_status"`
}

type subscriptionObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
}

type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
}

// Dispatcher routes verified events to their handlers.
type Dispatcher struct{}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch handles ev. handled is false for event kinds outside EventKind;
// err is set when the event object cannot be decoded.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (bool, error) {
	kind := ev.Kind
	if kind == EventUnknown {
		kind = ParseEventKind(ev.Type)
	}

	switch kind {
	case EventCheckoutSessionCompleted:
		var obj checkoutSessionObject
		if err := decodeObject(ev, &obj); err != nil {
			return false, err
		}
		fiberlog.Infof("billing: checkout session %s completed (mode=%s customer=%s email=%s subscription=%s)",
			obj.ID, obj.Mode, obj.Customer, obj.CustomerEmail, obj.Subscription)
	case EventCustomerSubscriptionUpdated:
		var obj subscriptionObject
		if err := decodeObject(ev, &obj); err != nil {
			return false, err
		}
		fiberlog.Infof("billing: subscription %s of customer %s updated, status=%s cancel_at_period_end=%t",
			obj.ID, obj.Customer, obj.Status, obj.CancelAtPeriodEnd)
	case EventCustomerSubscriptionDeleted:
		var obj subscriptionObject
		if err := decodeObject(ev, &obj); err != nil {
			return false, err
		}
		fiberlog.Infof("billing: subscription %s of customer %s deleted", obj.ID, obj.Customer)
	case EventInvoicePaymentSucceeded:
		var obj invoiceObject
		if err := decodeObject(ev, &obj); err != nil {
			return false, err
		}
		fiberlog.Infof("billing: invoice %s paid, %d %s (subscription=%s)",
			obj.ID, obj.AmountPaid, obj.Currency, obj.Subscription)
	case EventInvoicePaymentFailed:
		var obj invoiceObject
		if err := decodeObject(ev, &obj); err != nil {
			return false, err
		}
		fiberlog.Warnf("billing: payment of invoice %s failed, %d %s due (customer=%s)",
			obj.ID, obj.AmountDue, obj.Currency, obj.Customer)
	default:
		fiberlog.Infof("billing: unhandled event type %s (%s)", ev.Type, ev.ID)
		return false, nil
	}
	return true, nil
}

func decodeObject(ev Event, dst interface{}) error {
	if len(ev.Object) == 0 {
		return fmt.Errorf("event %s (%s): %w: missing data object", ev.ID, ev.Type, ErrInvalidPayload)
	}
	if err := json.Unmarshal(ev.Object, dst); err != nil {
		return fmt.Errorf("event %s (%s): %w: %v", ev.ID, ev.Type, ErrInvalidPayload, err)
	}
	return nil
}

// WebhookOutcome is the result of HandleWebhook.
type WebhookOutcome struct {
	Event     *Event
	Duplicate bool
	Handled   bool
}

// HandleWebhook verifies, records and dispatches one webhook delivery.
// Verification failures return ErrInvalidPayload or ErrInvalidSignature.
// Redeliveries of an already processed event, or of one another delivery is
// dispatching, are acknowledged without dispatching them again. Errors of the handler itself are stored with the
// delivery and do not fail the call.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookOutcome, error) {
	ev, err := s.gateway.ConstructEvent(payload, signatureHeader)
	if err != nil {
		return nil, err
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        providerName,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event %s: %w", ev.ID, err)
	}
	if !created && stored.ProcessedAt != nil {
		fiberlog.Infof("billing: webhook event %s already processed, skipping", ev.ID)
		return &WebhookOutcome{Event: ev, Duplicate: true, Handled: stored.Handled}, nil
	}

	claimed, err := s.claimWebhookEvent(ctx, stored.ID)
	if err != nil {
		return nil, fmt.Errorf("claim webhook event %s: %w", ev.ID, err)
	}
	if !claimed {
		fiberlog.Infof("billing: webhook event %s is being processed by another delivery, skipping", ev.ID)
		return &WebhookOutcome{Event: ev, Duplicate: true}, nil
	}

	handled, dispatchErr := s.dispatcher.Dispatch(ctx, *ev)
	if dispatchErr != nil {
		fiberlog.Errorf("billing: webhook event %s: %v", ev.ID, dispatchErr)
	}
	if err := s.MarkWebhookProcessed(ctx, stored.ID, handled, dispatchErr); err != nil {
		fiberlog.Errorf("billing: could not mark webhook event %s processed: %v", ev.ID, err)
	}
	return &WebhookOutcome{Event: ev, Handled: handled}, nil
}
