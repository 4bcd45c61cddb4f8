package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
)

// fakeGateway is an in-memory Gateway. Lookups of ids listed in the fail
// maps return the mapped error.
type fakeGateway struct {
	mu sync.Mutex

	customers     map[string][]Customer
	subscriptions map[string][]Subscription
	expanded      map[string]*Subscription
	prices        map[string]*Price
	products      map[string]*Product
	lineItems     map[string][]LineItem
	sessions      map[string]*CheckoutSession

	listCustomersErr  error
	listSubsErr       map[string]error
	getSubErr         map[string]error // keyed by id, applies to expanded fetches
	getSubPlainErr    map[string]error
	createCustomerErr error
	updateCustomerErr error
	createPriceErr    error
	event             *Event
	eventErr          error

	calls          []string
	createdPrices  []PriceParams
	createdSession []CheckoutSessionParams
	createdCust    []CustomerParams
	updatedCust    []CustomerParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers:      map[string][]Customer{},
		subscriptions:  map[string][]Subscription{},
		expanded:       map[string]*Subscription{},
		prices:         map[string]*Price{},
		products:       map[string]*Product{},
		lineItems:      map[string][]LineItem{},
		sessions:       map[string]*CheckoutSession{},
		listSubsErr:    map[string]error{},
		getSubErr:      map[string]error{},
		getSubPlainErr: map[string]error{},
	}
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) ListCustomersByEmail(ctx context.Context, email string) ([]Customer, error) {
	f.record("ListCustomersByEmail:" + email)
	if f.listCustomersErr != nil {
		return nil, f.listCustomersErr
	}
	return f.customers[email], nil
}

func (f *fakeGateway) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	f.record("ListSubscriptions:" + customerID)
	if err := f.listSubsErr[customerID]; err != nil {
		return nil, err
	}
	return f.subscriptions[customerID], nil
}

func (f *fakeGateway) GetSubscription(ctx context.Context, id string, expand bool) (*Subscription, error) {
	f.record(fmt.Sprintf("GetSubscription:%s:%t", id, expand))
	if expand {
		if err := f.getSubErr[id]; err != nil {
			return nil, err
		}
	} else if err := f.getSubPlainErr[id]; err != nil {
		return nil, err
	}
	sub, ok := f.expanded[id]
	if !ok {
		return nil, invalidRequest("get subscription")
	}
	return sub, nil
}

func (f *fakeGateway) GetPrice(ctx context.Context, id string) (*Price, error) {
	f.record("GetPrice:" + id)
	p, ok := f.prices[id]
	if !ok {
		return nil, invalidRequest("get price")
	}
	return p, nil
}

func (f *fakeGateway) GetProduct(ctx context.Context, id string) (*Product, error) {
	f.record("GetProduct:" + id)
	p, ok := f.products[id]
	if !ok {
		return nil, invalidRequest("get product")
	}
	return p, nil
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	f.record("CreateCustomer:" + params.Email)
	if f.createCustomerErr != nil {
		return nil, f.createCustomerErr
	}
	f.createdCust = append(f.createdCust, params)
	c := Customer{ID: fmt.Sprintf("cus_new_%d", len(f.createdCust)), Email: params.Email}
	f.customers[params.Email] = append(f.customers[params.Email], c)
	return &c, nil
}

func (f *fakeGateway) UpdateCustomer(ctx context.Context, id string, params CustomerParams) error {
	f.record("UpdateCustomer:" + id)
	if f.updateCustomerErr != nil {
		return f.updateCustomerErr
	}
	f.updatedCust = append(f.updatedCust, params)
	return nil
}

func (f *fakeGateway) CreatePrice(ctx context.Context, params PriceParams) (*Price, error) {
	f.record("CreatePrice")
	if f.createPriceErr != nil {
		return nil, f.createPriceErr
	}
	f.createdPrices = append(f.createdPrices, params)
	amount := params.UnitAmount
	p := &Price{
		ID:         fmt.Sprintf("price_new_%d", len(f.createdPrices)),
		UnitAmount: &amount,
		Currency:   params.Currency.String(),
		Interval:   params.Interval.String(),
	}
	f.prices[p.ID] = p
	return p, nil
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	f.record("CreateCheckoutSession")
	f.createdSession = append(f.createdSession, params)
	id := fmt.Sprintf("cs_test_%d", len(f.createdSession))
	s := &CheckoutSession{ID: id, URL: "https://checkout.example.com/" + id, Mode: params.Mode}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeGateway) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	f.record("GetCheckoutSession:" + id)
	s, ok := f.sessions[id]
	if !ok {
		return nil, invalidRequest("get checkout session")
	}
	return s, nil
}

func (f *fakeGateway) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	f.record("ListCheckoutLineItems:" + sessionID)
	return f.lineItems[sessionID], nil
}

func (f *fakeGateway) ConstructEvent(payload []byte, signatureHeader string) (*Event, error) {
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	return f.event, nil
}

func (f *fakeGateway) countCalls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func invalidRequest(op string) error {
	return &UpstreamError{Op: op, StatusCode: 404, Code: "resource_missing", InvalidRequest: true, Err: errors.New("no such object")}
}

// memoryEventLog is an in-memory EventLog keyed by provider event id.
type memoryEventLog struct {
	mu     sync.Mutex
	nextID uint
	events map[string]*models.BillingWebhookEvent
}

func newMemoryEventLog() *memoryEventLog {
	return &memoryEventLog{events: map[string]*models.BillingWebhookEvent{}}
}

func (m *memoryEventLog) CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := m.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	m.nextID++
	event.ID = m.nextID
	cp := *event
	m.events[key] = &cp
	return true, event, nil
}

func (m *memoryEventLog) Claim(ctx context.Context, id uint, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID != id {
			continue
		}
		if e.ProcessedAt != nil || (e.ClaimedAt != nil && !e.ClaimedAt.Before(staleBefore)) {
			return false, nil
		}
		now := time.Now()
		e.ClaimedAt = &now
		return true, nil
	}
	return false, errors.New("event not found")
}

func (m *memoryEventLog) MarkProcessed(ctx context.Context, id uint, handled bool, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			now := e.CreatedAt
			e.ProcessedAt = &now
			e.Handled = handled
			e.ProcessingError = processingError
			return nil
		}
	}
	return errors.New("event not found")
}

func (m *memoryEventLog) get(provider, eventID string) *models.BillingWebhookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[provider+"/"+eventID]
}
