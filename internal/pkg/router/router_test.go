package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	fsession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/auth"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/session"
)

type memoryUsers struct {
	mu    sync.Mutex
	users []*models.User
}

func (m *memoryUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) FindByID(ctx context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) Exists(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	return err == nil, nil
}

func (m *memoryUsers) Create(ctx context.Context, email, passwordHash string) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return 0, repository.ErrDuplicateEmail
		}
	}
	id := uint(len(m.users) + 1)
	m.users = append(m.users, &models.User{ID: id, Email: email, PasswordHash: passwordHash})
	return id, nil
}

func (m *memoryUsers) UpdatePassword(ctx context.Context, id uint, passwordHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			return true, nil
		}
	}
	return false, nil
}

// stubGateway answers the provider calls the routes make. Methods that are
// not overridden panic through the nil embedded interface.
type stubGateway struct {
	billing.Gateway

	customers      map[string][]billing.Customer
	subscriptions  map[string][]billing.Subscription
	listErr        error
	createdSession []billing.CheckoutSessionParams
	event          *billing.Event
	eventErr       error
}

func (s *stubGateway) ListCustomersByEmail(ctx context.Context, email string) ([]billing.Customer, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.customers[email], nil
}

func (s *stubGateway) ListSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	return s.subscriptions[customerID], nil
}

func (s *stubGateway) GetProduct(ctx context.Context, id string) (*billing.Product, error) {
	return &billing.Product{ID: id, Name: "Pro"}, nil
}

func (s *stubGateway) CreateCustomer(ctx context.Context, params billing.CustomerParams) (*billing.Customer, error) {
	return &billing.Customer{ID: "cus_new", Email: params.Email}, nil
}

func (s *stubGateway) CreatePrice(ctx context.Context, params billing.PriceParams) (*billing.Price, error) {
	return &billing.Price{ID: "price_new"}, nil
}

func (s *stubGateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutSessionParams) (*billing.CheckoutSession, error) {
	s.createdSession = append(s.createdSession, params)
	return &billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.example.com/cs_1", Mode: params.Mode}, nil
}

func (s *stubGateway) GetCheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error) {
	return nil, &billing.UpstreamError{Op: "get checkout session", InvalidRequest: true, Err: errors.New("no such session")}
}

func (s *stubGateway) ConstructEvent(payload []byte, signatureHeader string) (*billing.Event, error) {
	if s.eventErr != nil {
		return nil, s.eventErr
	}
	return s.event, nil
}

type testEnv struct {
	app     *fiber.App
	gateway *stubGateway
	healthy bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	session.SetSessionStore(fsession.New())
	t.Cleanup(func() { session.SetSessionStore(nil) })

	authSvc, err := auth.NewService(&memoryUsers{}, bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		gateway: &stubGateway{
			customers:     map[string][]billing.Customer{},
			subscriptions: map[string][]billing.Subscription{},
		},
		healthy: true,
	}
	env.app = fiber.New()
	InstallRouter(env.app, Dependencies{
		Auth:         authSvc,
		Billing:      billing.NewService(env.gateway, nil),
		PublicDomain: "https://subfox.example.com/",
		HealthChecks: map[string]controllers.HealthCheck{
			"database": func(ctx context.Context) error {
				if !env.healthy {
					return errors.New("down")
				}
				return nil
			},
		},
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func (e *testEnv) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/register", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/api/subscriptions"},
		{http.MethodPost, "/create-checkout-session"},
		{http.MethodGet, "/success"},
		{http.MethodPost, "/logout"},
		{http.MethodPost, "/user/password"},
	} {
		resp, body := env.do(t, r.method, r.path, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, r.path)
		assert.Equal(t, "unauthorized", decode(t, body)["error"], r.path)
	}
}

func TestRegisterOutcomes(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/register", `{"email":"new@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "new@example.com", out["user"].(map[string]interface{})["email"])
	assert.NotContains(t, body, "password")

	resp, body = env.do(t, http.MethodPost, "/register", `{"email":"new@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "email_already_exists", decode(t, body)["error_code"])

	resp, body = env.do(t, http.MethodPost, "/register", `{"email":"weak@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "weak_password", decode(t, body)["error_code"])

	resp, body = env.do(t, http.MethodPost, "/register", `{"email":"","password":""}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Email and password are required.", decode(t, body)["message"])
}

func TestLoginFailure(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "pat@example.com", "password123")

	resp, body := env.do(t, http.MethodPost, "/login", `{"email":"pat@example.com","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "invalid_credentials", out["error_code"])
	assert.Equal(t, "Invalid email or password.", out["message"])

	resp, _ = env.do(t, http.MethodPost, "/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t)

	var last *http.Response
	for i := 0; i < loginAttemptsPerWindow+1; i++ {
		last, _ = env.do(t, http.MethodPost, "/login", `{"email":"x@example.com","password":"password123"}`)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
}

func TestIndexListsSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "pat@example.com", "password123")

	amount := int64(1999)
	env.gateway.customers["pat@example.com"] = []billing.Customer{{ID: "cus_1"}}
	env.gateway.subscriptions["cus_1"] = []billing.Subscription{{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: 1700000000,
		Raw:              billing.SubscriptionFull{"id": "sub_1", "object": "subscription"},
		Items: []billing.SubscriptionItem{{Price: billing.PriceRef{ID: "price_1", Price: &billing.Price{
			ID: "price_1", UnitAmount: &amount, Currency: "usd", Interval: "month", Product: billing.ProductRef{ID: "prod_1"},
		}}}},
	}}

	resp, body := env.do(t, http.MethodGet, "/", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, "pat@example.com", out["user_email"])
	subs := out["subscriptions"].([]interface{})
	require.Len(t, subs, 1)
	sub := subs[0].(map[string]interface{})
	assert.Equal(t, "sub_1", sub["id"])
	assert.Equal(t, "Pro", sub["product_name"])
	assert.Equal(t, 19.99, sub["amount"])
	assert.Equal(t, "2023-11-14T22:13:20Z", sub["current_period_end"])

	resp, body = env.do(t, http.MethodGet, "/api/subscriptions", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decode(t, body)
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, []interface{}{"cus_1"}, out["queried_customer_ids"])
	assert.Equal(t, "subscription", out["subscriptions"].([]interface{})[0].(map[string]interface{})["object"])
}

func TestIndexUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "pat@example.com", "password123")
	env.gateway.listErr = &billing.UpstreamError{Op: "list customers", StatusCode: 500, Err: errors.New("api down")}

	resp, body := env.do(t, http.MethodGet, "/", "", cookie)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream_error", decode(t, body)["error"])
}

func TestCreateCheckoutSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "pat@example.com", "password123")

	resp, body := env.do(t, http.MethodPost, "/create-checkout-session", `{"amount":"abc","currency":"usd"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_amount", decode(t, body)["error"])

	resp, body = env.do(t, http.MethodPost, "/create-checkout-session", `{"productName":"Pro","amount":12.34,"currency":"eur","recurring":"month"}`, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	out := decode(t, body)
	assert.Equal(t, "cs_1", out["sessionId"])
	assert.Equal(t, "https://checkout.example.com/cs_1", out["url"])

	require.Len(t, env.gateway.createdSession, 1)
	params := env.gateway.createdSession[0]
	assert.Equal(t, billing.CheckoutModeSubscription, params.Mode)
	assert.Equal(t, "https://subfox.example.com/success?session_id={CHECKOUT_SESSION_ID}", params.SuccessURL)
	assert.Equal(t, "https://subfox.example.com/cancel", params.CancelURL)
	assert.Equal(t, "cus_new", params.CustomerID)
}

func TestSuccessAndCancel(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "pat@example.com", "password123")

	resp, body := env.do(t, http.MethodGet, "/success?session_id=cs_missing", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, "cs_missing", out["session_id"])
	assert.Nil(t, out["amount"])
	assert.Nil(t, out["currency"])

	resp, body = env.do(t, http.MethodGet, "/cancel", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Subscription cancelled.", body)
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "pat@example.com", "password123")

	resp, _ := env.do(t, http.MethodPost, "/logout", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePasswordRoute(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "pat@example.com", "password123")

	resp, body := env.do(t, http.MethodPost, "/user/password", `{"current_password":"wrong-one","new_password":"new-password"}`, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Current password is incorrect.", decode(t, body)["message"])

	resp, _ = env.do(t, http.MethodPost, "/user/password", `{"current_password":"password123","new_password":"new-password"}`, cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/login", `{"email":"pat@example.com","password":"new-password"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookResponses(t *testing.T) {
	env := newTestEnv(t)

	env.gateway.eventErr = billing.ErrInvalidPayload
	resp, body := env.do(t, http.MethodPost, "/webhook", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid payload", body)

	env.gateway.eventErr = billing.ErrInvalidSignature
	resp, body = env.do(t, http.MethodPost, "/webhook", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid signature", body)

	env.gateway.eventErr = nil
	env.gateway.event = &billing.Event{
		ID:     "evt_1",
		Type:   string(billing.EventCheckoutSessionCompleted),
		Kind:   billing.EventCheckoutSessionCompleted,
		Object: json.RawMessage(`{"id":"cs_1","customer_email":"pat@example.com"}`),
	}
	resp, body = env.do(t, http.MethodPost, "/webhook", `{"id":"evt_1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, body)["success"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode(t, body)["status"])

	env.healthy = false
	resp, body = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, "unavailable", out["checks"].(map[string]interface{})["database"])
}

func TestWebhookCountersWithoutRedis(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/metrics/webhooks", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"received":{},"failed":{}}`, body)
}
