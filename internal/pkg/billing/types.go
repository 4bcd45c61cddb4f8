package billing

import (
	"context"
	"encoding/json"
	"time"
)

// Gateway is the payment provider boundary. Implementations map the
// provider's wire objects onto the fixed records below; nothing outside the
// adapter sees the provider SDK types.
type Gateway interface {
	ListCustomersByEmail(ctx context.Context, email string) ([]Customer, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	GetSubscription(ctx context.Context, id string, expand bool) (*Subscription, error)
	GetPrice(ctx context.Context, id string) (*Price, error)
	GetProduct(ctx context.Context, id string) (*Product, error)

	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	UpdateCustomer(ctx context.Context, id string, params CustomerParams) error
	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	ListCheckoutLineItems(ctx context.Context, sessionID string) ([]LineItem, error)

	ConstructEvent(payload []byte, signatureHeader string) (*Event, error)
}

// Customer is a provider customer record. The provider does not enforce
// unique emails, so one email may map to several customers.
type Customer struct {
	ID    string
	Email string
}

// Subscription is a provider subscription. Raw is nil when the provider
// returned only a reference (id) instead of the full object.
type Subscription struct {
	ID               string
	Status           string
	CurrentPeriodEnd int64 // unix seconds, 0 when absent
	Items            []SubscriptionItem
	Raw              SubscriptionFull
}

// IsReference reports whether only the id of the subscription is known.
func (s Subscription) IsReference() bool {
	return s.Raw == nil
}

type SubscriptionItem struct {
	ID    string
	Price PriceRef
}

// PriceRef is either an inline price or a bare id to be fetched.
type PriceRef struct {
	ID    string
	Price *Price
}

type Price struct {
	ID         string
	UnitAmount *int64 // minor units
	Currency   string
	Interval   string
	Product    ProductRef
}

// ProductRef is either an inline product or a bare id to be fetched.
type ProductRef struct {
	ID      string
	Product *Product
}

type Product struct {
	ID   string
	Name string
}

type LineItem struct {
	ID    string
	Price PriceRef
}

type CheckoutSession struct {
	ID   string
	URL  string
	Mode string
}

// Event is a verified webhook event. Object holds the event's data.object.
type Event struct {
	ID     string
	Type   string
	Kind   EventKind
	Object json.RawMessage
}

type CustomerParams struct {
	Email          string
	Name           string
	Address        *BillingAddress
	IdempotencyKey string
}

type PriceParams struct {
	Currency       Currency
	UnitAmount     int64
	ProductName    string
	Interval       RecurringInterval
	IdempotencyKey string
}

type CheckoutSessionParams struct {
	Mode           string
	PriceID        string
	CustomerID     string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// BillingAddress is the optional address collected with a checkout form.
type BillingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country" validate:"omitempty,len=2"`
}

// SubscriptionFull is the provider's raw subscription record.
type SubscriptionFull map[string]interface{}

// SubscriptionSummary is the derived view shown to a signed-in user.
type SubscriptionSummary struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	ProductName      *string    `json:"product_name"`
	Amount           *float64   `json:"amount"`
	Currency         *string    `json:"currency"`
	Interval         *string    `json:"interval"`
}

// SubscriptionsResult is the aggregation over all customers of one email.
// Exactly one of Summaries or Full is populated, depending on the request.
type SubscriptionsResult struct {
	Summaries          []SubscriptionSummary
	Full               []SubscriptionFull
	QueriedCustomerIDs []string
}

// CheckoutRequest is the validated input of CreateCheckoutSession.
type CheckoutRequest struct {
	Email       string            `validate:"omitempty,email"`
	ProductName string            `validate:"required,max=250"`
	Amount      string
	Currency    Currency          `validate:"required,currency"`
	Interval    RecurringInterval `validate:"omitempty,interval"`
	SuccessURL  string            `validate:"required,url"`
	CancelURL   string            `validate:"required,url"`
	Billing     *BillingAddress
}

type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// CheckoutDetails is shown on the success page. Fields are nil when the
// session could not be resolved.
type CheckoutDetails struct {
	Amount   *float64 `json:"amount"`
	Currency *string  `json:"currency"`
}
