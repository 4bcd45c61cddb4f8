package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/metrics/counter"
)

const stripeSignatureHeader = "Stripe-Signature"

// WebhookController receives signed provider webhooks.
type WebhookController struct {
	billing *billing.Service
	counter *counter.WebhookCounter
}

// NewWebhookController creates the controller. A nil counter disables counting.
func NewWebhookController(svc *billing.Service, c *counter.WebhookCounter) *WebhookController {
	return &WebhookController{billing: svc, counter: c}
}

func (w *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)

	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := w.billing.HandleWebhook(ctx, payload, c.Get(stripeSignatureHeader))
	switch {
	case errors.Is(err, billing.ErrInvalidPayload):
		w.count(ctx, w.counter.AddFailed, "invalid_payload")
		return c.Status(fiber.StatusBadRequest).SendString("Invalid payload")
	case errors.Is(err, billing.ErrInvalidSignature):
		w.count(ctx, w.counter.AddFailed, "invalid_signature")
		return c.Status(fiber.StatusBadRequest).SendString("Invalid signature")
	case err != nil:
		return internalError(c, err)
	}
	if out.Event != nil {
		w.count(ctx, w.counter.AddReceived, out.Event.Type)
	}

	resp := fiber.Map{"success": true}
	if out.Duplicate {
		resp["duplicate"] = true
	}
	return c.JSON(resp)
}

func (w *WebhookController) count(ctx context.Context, add func(context.Context, string) error, field string) {
	if err := add(ctx, field); err != nil {
		fiberlog.Warnf("webhook counter: %v", err)
	}
}

// HandleCounters reports the webhook counters.
func (w *WebhookController) HandleCounters(c *fiber.Ctx) error {
	snap, err := w.counter.Snapshot(c.UserContext())
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(snap)
}
