package controllers

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/constants"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// BillingController serves the subscription overview and hosted checkout.
type BillingController struct {
	billing        *billing.Service
	publishableKey string
	publicDomain   string
}

func NewBillingController(svc *billing.Service, publishableKey, publicDomain string) *BillingController {
	return &BillingController{
		billing:        svc,
		publishableKey: publishableKey,
		publicDomain:   strings.TrimRight(publicDomain, "/"),
	}
}

// flexAmount accepts both JSON numbers and strings.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexAmount(s)
		return nil
	}
	*a = flexAmount(b)
	return nil
}

type checkoutForm struct {
	Email       string                  `json:"email" form:"email"`
	ProductName string                  `json:"productName" form:"productName"`
	Amount      flexAmount              `json:"amount" form:"amount"`
	Currency    string                  `json:"currency" form:"currency"`
	Recurring   string                  `json:"recurring" form:"recurring"`
	Billing     *billing.BillingAddress `json:"billing" form:"-"`
}

func (b *BillingController) HandleIndex(c *fiber.Ctx) error {
	email := usercontext.GetEmail(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := b.billing.GetSubscriptionsForUser(ctx, email, false)
	if err != nil {
		return writeBillingError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_email":      email,
		"publishable_key": b.publishableKey,
		"subscriptions":   res.Summaries,
	})
}

func (b *BillingController) HandleAPISubscriptions(c *fiber.Ctx) error {
	email := usercontext.GetEmail(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := b.billing.GetSubscriptionsForUser(ctx, email, true)
	if err != nil {
		return writeBillingError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_email":           email,
		"count":                len(res.Full),
		"queried_customer_ids": res.QueriedCustomerIDs,
		"subscriptions":        res.Full,
	})
}

func (b *BillingController) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var form checkoutForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": "Malformed checkout request",
		})
	}

	req := billing.CheckoutRequest{
		Email:       form.Email,
		ProductName: form.ProductName,
		Amount:      string(form.Amount),
		Currency:    billing.Currency(form.Currency),
		Interval:    billing.RecurringInterval(form.Recurring),
		SuccessURL:  b.baseURL(c) + constants.SuccessRoute + "?session_id=" + constants.CheckoutSessionIDPlaceholder,
		CancelURL:   b.baseURL(c) + constants.CancelRoute,
		Billing:     form.Billing,
	}
	if req.Email == "" {
		req.Email = usercontext.GetEmail(c)
	}
	if req.ProductName == "" {
		req.ProductName = "Default Product"
	}
	if req.Currency == "" {
		req.Currency = billing.CurrencyUSD
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := b.billing.CreateCheckoutSession(ctx, req)
	if err != nil {
		return writeBillingError(c, err)
	}
	return c.JSON(res)
}

func (b *BillingController) HandleSuccess(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")

	ctx, cancel := requestContext(c)
	defer cancel()

	details := b.billing.GetCheckoutSessionDetails(ctx, sessionID)
	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"amount":     details.Amount,
		"currency":   details.Currency,
	})
}

func (b *BillingController) HandleCancel(c *fiber.Ctx) error {
	return c.SendString("Subscription cancelled.")
}

func (b *BillingController) baseURL(c *fiber.Ctx) string {
	if b.publicDomain != "" {
		return b.publicDomain
	}
	return c.BaseURL()
}
