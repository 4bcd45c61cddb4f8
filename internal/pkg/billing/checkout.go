package billing

import (
	"context"
	"fmt"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// GetOrCreateCustomer returns the first provider customer registered under
// email, creating one when none exists. A provided billing address is
// written to an existing customer; failing to do so is logged only.
func (s *Service) GetOrCreateCustomer(ctx context.Context, email string, billing *BillingAddress) (string, error) {
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidCheckout)
	}

	params := CustomerParams{Email: email, Address: billing}
	if billing != nil {
		params.Name = billing.Name
	}

	customers, err := s.gateway.ListCustomersByEmail(ctx, email)
	if err != nil {
		return "", asUpstream("list customers", err)
	}
	if len(customers) > 0 {
		id := customers[0].ID
		if billing != nil {
			params.IdempotencyKey = s.newKey()
			if err := s.gateway.UpdateCustomer(ctx, id, params); err != nil {
				fiberlog.Warnf("billing: could not update address of customer %s: %v", id, err)
			}
		}
		return id, nil
	}

	params.IdempotencyKey = s.newKey()
	customer, err := s.gateway.CreateCustomer(ctx, params)
	if err != nil {
		return "", asUpstream("create customer", err)
	}
	fiberlog.Infof("billing: created customer %s", customer.ID)
	return customer.ID, nil
}

// CreateCheckoutSession creates a one-off price for the requested amount and
// opens a hosted checkout session for it. A set interval makes the price
// recurring and the session a subscription checkout.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	req.Currency = Currency(strings.ToLower(strings.TrimSpace(string(req.Currency))))
	req.Interval = RecurringInterval(strings.ToLower(strings.TrimSpace(string(req.Interval))))
	req.Email = strings.TrimSpace(req.Email)

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckout, err)
	}
	if req.Billing != nil {
		if err := s.validate.Struct(req.Billing); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCheckout, err)
		}
	}

	unitAmount, ok := ToMinorUnit(req.Amount, string(req.Currency))
	if !ok || unitAmount <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, req.Amount)
	}

	price, err := s.gateway.CreatePrice(ctx, PriceParams{
		Currency:       req.Currency,
		UnitAmount:     unitAmount,
		ProductName:    req.ProductName,
		Interval:       req.Interval,
		IdempotencyKey: s.newKey(),
	})
	if err != nil {
		return nil, asUpstream("create price", err)
	}

	params := CheckoutSessionParams{
		Mode:           CheckoutModePayment,
		PriceID:        price.ID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		IdempotencyKey: s.newKey(),
	}
	if req.Interval != "" {
		params.Mode = CheckoutModeSubscription
	}

	if req.Email != "" {
		customerID, err := s.GetOrCreateCustomer(ctx, req.Email, req.Billing)
		if err != nil {
			fiberlog.Warnf("billing: customer lookup for checkout failed, using email only: %v", err)
			params.CustomerEmail = req.Email
		} else {
			params.CustomerID = customerID
		}
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, asUpstream("create checkout session", err)
	}
	return &CheckoutResult{URL: session.URL, SessionID: session.ID}, nil
}

// GetCheckoutSessionDetails resolves amount and currency of the first line
// item of a completed session. Any failure yields empty details.
func (s *Service) GetCheckoutSessionDetails(ctx context.Context, sessionID string) CheckoutDetails {
	if sessionID == "" {
		return CheckoutDetails{}
	}
	if _, err := s.gateway.GetCheckoutSession(ctx, sessionID); err != nil {
		fiberlog.Warnf("billing: could not fetch checkout session %s: %v", sessionID, err)
		return CheckoutDetails{}
	}
	items, err := s.gateway.ListCheckoutLineItems(ctx, sessionID)
	if err != nil {
		fiberlog.Warnf("billing: could not list line items of %s: %v", sessionID, err)
		return CheckoutDetails{}
	}
	if len(items) == 0 {
		return CheckoutDetails{}
	}

	price := s.resolvePrice(ctx, items[0].Price)
	if price == nil {
		return CheckoutDetails{}
	}

	var details CheckoutDetails
	if price.UnitAmount != nil {
		amount := FromMinorUnit(*price.UnitAmount, price.Currency)
		details.Amount = &amount
	}
	if price.Currency != "" {
		currency := strings.ToUpper(price.Currency)
		details.Currency = &currency
	}
	return details
}
