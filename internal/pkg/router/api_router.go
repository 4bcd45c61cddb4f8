package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	billingController := controllers.NewBillingController(h.deps.Billing, h.deps.PublishableKey, h.deps.PublicDomain)

	api := app.Group("/api", middleware.RequireAPISessionAuth)
	api.Get("/subscriptions", billingController.HandleAPISubscriptions)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
