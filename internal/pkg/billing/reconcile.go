package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// GetSubscriptionsForUser aggregates the subscriptions of every provider
// customer registered under email. With full set, the provider's raw records
// are returned; otherwise each subscription is reduced to a summary.
//
// Listing failures are returned. Failures of nested lookups (prices,
// products, re-fetches) only degrade the affected entry.
func (s *Service) GetSubscriptionsForUser(ctx context.Context, email string, full bool) (*SubscriptionsResult, error) {
	result := &SubscriptionsResult{
		Summaries:          []SubscriptionSummary{},
		Full:               []SubscriptionFull{},
		QueriedCustomerIDs: []string{},
	}
	if email == "" {
		return result, nil
	}

	customers, err := s.gateway.ListCustomersByEmail(ctx, email)
	if err != nil {
		return nil, asUpstream("list customers", err)
	}

	for _, customer := range customers {
		result.QueriedCustomerIDs = append(result.QueriedCustomerIDs, customer.ID)

		subs, err := s.gateway.ListSubscriptions(ctx, customer.ID)
		if err != nil {
			return nil, asUpstream("list subscriptions for "+customer.ID, err)
		}

		for _, sub := range subs {
			if full {
				result.Full = append(result.Full, s.fullRecord(ctx, sub))
				continue
			}
			result.Summaries = append(result.Summaries, s.summarize(ctx, sub))
		}
	}
	return result, nil
}

// fullRecord returns the provider's record for sub, re-fetching references.
func (s *Service) fullRecord(ctx context.Context, sub Subscription) SubscriptionFull {
	if !sub.IsReference() {
		return sub.Raw
	}

	fetched, err := s.gateway.GetSubscription(ctx, sub.ID, true)
	if err != nil && errors.Is(err, ErrInvalidRequest) {
		fiberlog.Warnf("billing: expanded fetch of subscription %s rejected, retrying without expansion: %v", sub.ID, err)
		fetched, err = s.gateway.GetSubscription(ctx, sub.ID, false)
	}
	if err != nil {
		fiberlog.Warnf("billing: falling back to minimal record for subscription %s: %v", sub.ID, err)
		return minimalRecord(sub)
	}
	if fetched.Raw == nil {
		return minimalRecord(*fetched)
	}
	return fetched.Raw
}

func minimalRecord(sub Subscription) SubscriptionFull {
	rec := SubscriptionFull{
		"id":                 sub.ID,
		"status":             nil,
		"current_period_end": nil,
	}
	if sub.Status != "" {
		rec["status"] = sub.Status
	}
	if sub.CurrentPeriodEnd > 0 {
		rec["current_period_end"] = sub.CurrentPeriodEnd
	}
	return rec
}

func (s *Service) summarize(ctx context.Context, sub Subscription) SubscriptionSummary {
	summary := SubscriptionSummary{
		ID:     sub.ID,
		Status: sub.Status,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		summary.CurrentPeriodEnd = &end
	}
	if len(sub.Items) == 0 {
		return summary
	}

	price := s.resolvePrice(ctx, sub.Items[0].Price)
	if price == nil {
		return summary
	}

	summary.ProductName = s.resolveProductName(ctx, price.Product)
	if price.UnitAmount != nil && *price.UnitAmount != 0 {
		// Summaries report hundredths for every currency, zero-decimal ones included.
		amount := float64(*price.UnitAmount) / 100
		summary.Amount = &amount
	}
	if price.Currency != "" {
		currency := strings.ToLower(price.Currency)
		summary.Currency = &currency
	}
	if price.Interval != "" {
		interval := price.Interval
		summary.Interval = &interval
	}
	return summary
}

func (s *Service) resolvePrice(ctx context.Context, ref PriceRef) *Price {
	if ref.Price != nil {
		return ref.Price
	}
	if ref.ID == "" {
		return nil
	}
	price, err := s.gateway.GetPrice(ctx, ref.ID)
	if err != nil {
		fiberlog.Warnf("billing: could not fetch price %s: %v", ref.ID, err)
		return nil
	}
	return price
}

func (s *Service) resolveProductName(ctx context.Context, ref ProductRef) *string {
	product := ref.Product
	if product == nil {
		if ref.ID == "" {
			return nil
		}
		fetched, err := s.gateway.GetProduct(ctx, ref.ID)
		if err != nil {
			fiberlog.Warnf("billing: could not fetch product %s: %v", ref.ID, err)
			return nil
		}
		product = fetched
	}
	if product.Name == "" {
		return nil
	}
	name := product.Name
	return &name
}

// asUpstream makes sure provider failures leave the service as *UpstreamError.
func asUpstream(op string, err error) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
