package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeListPageSize = 100
	subscriptionExpand = "items.data.price.product"
)

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the API base URL, e.g. for stripe-mock.
	APIURL            string
	HTTPTimeout       time.Duration
	MaxNetworkRetries int64
}

// StripeGateway implements Gateway on top of stripe-go.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a Stripe adapter with its own backends, so no
// package level stripe-go state is touched.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 80 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	backendConfig := func() *stripe.BackendConfig {
		c := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			LeveledLogger:     leveledLogger{},
			MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		}
		if cfg.APIURL != "" {
			c.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
		}
		return c
	}

	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig()),
	})
	return &StripeGateway{api: api, webhookSecret: cfg.WebhookSecret}
}

func (g *StripeGateway) ListCustomersByEmail(ctx context.Context, email string) ([]Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(stripeListPageSize)

	var out []Customer
	it := g.api.Customers.List(params)
	for it.Next() {
		c := it.Customer()
		out = append(out, Customer{ID: c.ID, Email: c.Email})
	}
	if err := it.Err(); err != nil {
		return nil, classifyStripeError("list customers", err)
	}
	return out, nil
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.Limit = stripe.Int64(stripeListPageSize)

	var out []Subscription
	it := g.api.Subscriptions.List(params)
	for it.Next() {
		out = append(out, toSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, classifyStripeError("list subscriptions", err)
	}
	return out, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, id string, expand bool) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	if expand {
		params.AddExpand(subscriptionExpand)
	}
	s, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, classifyStripeError("get subscription", err)
	}
	sub := toSubscription(s)
	return &sub, nil
}

func (g *StripeGateway) GetPrice(ctx context.Context, id string) (*Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	p, err := g.api.Prices.Get(id, params)
	if err != nil {
		return nil, classifyStripeError("get price", err)
	}
	return toPrice(p), nil
}

func (g *StripeGateway) GetProduct(ctx context.Context, id string) (*Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx
	p, err := g.api.Products.Get(id, params)
	if err != nil {
		return nil, classifyStripeError("get product", err)
	}
	return &Product{ID: p.ID, Name: p.Name}, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, in CustomerParams) (*Customer, error) {
	params := customerParams(in)
	params.Context = ctx
	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, classifyStripeError("create customer", err)
	}
	return &Customer{ID: c.ID, Email: c.Email}, nil
}

func (g *StripeGateway) UpdateCustomer(ctx context.Context, id string, in CustomerParams) error {
	params := customerParams(in)
	params.Context = ctx
	params.Email = nil
	if _, err := g.api.Customers.Update(id, params); err != nil {
		return classifyStripeError("update customer", err)
	}
	return nil
}

func customerParams(in CustomerParams) *stripe.CustomerParams {
	params := &stripe.CustomerParams{}
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	if in.Name != "" {
		params.Name = stripe.String(in.Name)
	}
	if a := in.Address; a != nil {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(a.Line1),
			Line2:      stripe.String(a.Line2),
			City:       stripe.String(a.City),
			State:      stripe.String(a.State),
			PostalCode: stripe.String(a.PostalCode),
			Country:    stripe.String(a.Country),
		}
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	return params
}

func (g *StripeGateway) CreatePrice(ctx context.Context, in PriceParams) (*Price, error) {
	params := &stripe.PriceParams{
		Currency:   stripe.String(in.Currency.String()),
		UnitAmount: stripe.Int64(in.UnitAmount),
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(in.ProductName),
		},
	}
	if in.Interval != "" {
		params.Recurring = &stripe.PriceRecurringParams{
			Interval: stripe.String(in.Interval.String()),
		}
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	p, err := g.api.Prices.New(params)
	if err != nil {
		return nil, classifyStripeError("create price", err)
	}
	return toPrice(p), nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(in.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		Locale:                   stripe.String("auto"),
		AllowPromotionCodes:      stripe.Bool(false),
		SuccessURL:               stripe.String(in.SuccessURL),
		CancelURL:                stripe.String(in.CancelURL),
	}
	if in.Mode == CheckoutModePayment {
		params.SubmitType = stripe.String(string(stripe.CheckoutSessionSubmitTypePay))
	}
	switch {
	case in.CustomerID != "":
		params.Customer = stripe.String(in.CustomerID)
	case in.CustomerEmail != "":
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError("create checkout session", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL, Mode: string(s.Mode)}, nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, classifyStripeError("get checkout session", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL, Mode: string(s.Mode)}, nil
}

func (g *StripeGateway) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(stripeListPageSize)

	var out []LineItem
	it := g.api.CheckoutSessions.ListLineItems(params)
	for it.Next() {
		li := it.LineItem()
		out = append(out, LineItem{ID: li.ID, Price: toPriceRef(li.Price)})
	}
	if err := it.Err(); err != nil {
		return nil, classifyStripeError("list checkout line items", err)
	}
	return out, nil
}

// ConstructEvent verifies the Stripe-Signature header and parses the event.
func (g *StripeGateway) ConstructEvent(payload []byte, signatureHeader string) (*Event, error) {
	// A body that is not JSON is a payload error even when it is also unsigned.
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidPayload
		}
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type), Kind: ParseEventKind(string(ev.Type))}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}

func toSubscription(s *stripe.Subscription) Subscription {
	sub := Subscription{
		ID:               s.ID,
		Status:           string(s.Status),
		CurrentPeriodEnd: s.CurrentPeriodEnd,
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			sub.Items = append(sub.Items, SubscriptionItem{ID: item.ID, Price: toPriceRef(item.Price)})
		}
	}
	if s.Created != 0 || s.Status != "" {
		sub.Raw = rawSubscription(s)
	}
	return sub
}

// rawSubscription returns the provider's JSON for s, preferring the exact
// response body when the object was fetched on its own.
func rawSubscription(s *stripe.Subscription) SubscriptionFull {
	var body []byte
	if s.LastResponse != nil && len(s.LastResponse.RawJSON) > 0 {
		body = s.LastResponse.RawJSON
	} else {
		b, err := json.Marshal(s)
		if err != nil {
			fiberlog.Warnf("billing: could not encode subscription %s: %v", s.ID, err)
			return nil
		}
		body = b
	}
	var raw SubscriptionFull
	if err := json.Unmarshal(body, &raw); err != nil {
		fiberlog.Warnf("billing: could not decode subscription %s: %v", s.ID, err)
		return nil
	}
	return raw
}

func toPriceRef(p *stripe.Price) PriceRef {
	if p == nil {
		return PriceRef{}
	}
	// An unexpanded reference only carries the id.
	if p.Created == 0 && p.Currency == "" {
		return PriceRef{ID: p.ID}
	}
	return PriceRef{ID: p.ID, Price: toPrice(p)}
}

func toPrice(p *stripe.Price) *Price {
	price := &Price{
		ID:       p.ID,
		Currency: string(p.Currency),
	}
	if p.UnitAmount != 0 {
		amount := p.UnitAmount
		price.UnitAmount = &amount
	}
	if p.Recurring != nil {
		price.Interval = string(p.Recurring.Interval)
	}
	if p.Product != nil {
		price.Product = ProductRef{ID: p.Product.ID}
		if p.Product.Created != 0 || p.Product.Name != "" {
			price.Product.Product = &Product{ID: p.Product.ID, Name: p.Product.Name}
		}
	}
	return price
}

func classifyStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &UpstreamError{
			Op:             op,
			StatusCode:     se.HTTPStatusCode,
			Code:           string(se.Code),
			InvalidRequest: se.Type == stripe.ErrorTypeInvalidRequest,
			Err:            err,
		}
	}
	return &UpstreamError{Op: op, Err: err}
}

// leveledLogger routes stripe-go's logging into fiber's logger.
type leveledLogger struct{}

func (leveledLogger) Debugf(format string, v ...interface{}) { fiberlog.Debugf("stripe: "+format, v...) }
func (leveledLogger) Infof(format string, v ...interface{})  { fiberlog.Infof("stripe: "+format, v...) }
func (leveledLogger) Warnf(format string, v ...interface{})  { fiberlog.Warnf("stripe: "+format, v...) }
func (leveledLogger) Errorf(format string, v ...interface{}) { fiberlog.Errorf("stripe: "+format, v...) }
