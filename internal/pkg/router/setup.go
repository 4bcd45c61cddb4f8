package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/internal/pkg/auth"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/metrics/counter"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the routes are served from.
type Dependencies struct {
	Auth           *auth.Service
	Billing        *billing.Service
	PublishableKey string
	PublicDomain   string
	// LimiterStorage backs the login rate limit; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	HealthChecks   map[string]controllers.HealthCheck
	// WebhookCounter is optional; without it /metrics/webhooks reports zeros.
	WebhookCounter *counter.WebhookCounter
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the UserContext middleware the API routes rely on,
	// so it has to come first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
