package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/internal/pkg/constants"
	"github.com/ManuelReschke/SubFox/internal/pkg/middleware"
	"github.com/ManuelReschke/SubFox/internal/pkg/session"
)

const (
	loginAttemptsPerWindow = 10
	loginWindow            = 15 * time.Minute
)

type HttpRouter struct {
	deps Dependencies
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	if session.GetSessionStore() == nil {
		session.NewSessionStore()
	}

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	authController := controllers.NewAuthController(h.deps.Auth)
	billingController := controllers.NewBillingController(h.deps.Billing, h.deps.PublishableKey, h.deps.PublicDomain)
	webhookController := controllers.NewWebhookController(h.deps.Billing, h.deps.WebhookCounter)
	healthController := controllers.NewHealthController(h.deps.HealthChecks)

	loginLimiter := limiter.New(limiter.Config{
		Max:        loginAttemptsPerWindow,
		Expiration: loginWindow,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "login:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many login attempts. Try again later.",
			})
		},
	})

	// public
	app.Post("/login", loginLimiter, authController.HandleLogin)
	app.Post("/register", loginLimiter, authController.HandleRegister)
	app.Get(constants.CancelRoute, billingController.HandleCancel)
	app.Get("/healthz", healthController.HandleHealth)

	// provider webhooks, signature-verified in the controller
	app.Post(constants.WebhookRoute, webhookController.HandleWebhook)
	app.Get("/metrics/webhooks", webhookController.HandleCounters)

	// session required
	app.Get(constants.PublicRoute, middleware.RequireAPISessionAuth, billingController.HandleIndex)
	app.Post("/logout", middleware.RequireAPISessionAuth, authController.HandleLogout)
	app.Post("/user/password", middleware.RequireAPISessionAuth, authController.HandleChangePassword)
	app.Post("/create-checkout-session", middleware.RequireAPISessionAuth, billingController.HandleCreateCheckoutSession)
	app.Get(constants.SuccessRoute, middleware.RequireAPISessionAuth, billingController.HandleSuccess)
}
