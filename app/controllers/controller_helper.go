package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubFox/internal/pkg/auth"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
)

// requestTimeout bounds the work done for one request, provider calls included.
const requestTimeout = 90 * time.Second

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

func internalError(c *fiber.Ctx, err error) error {
	fiberlog.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_server_error",
		"message": "Something went wrong",
	})
}

// writeBillingError maps billing errors onto HTTP responses.
func writeBillingError(c *fiber.Ctx, err error) error {
	var upstream *billing.UpstreamError
	switch {
	case errors.Is(err, billing.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_amount",
			"message": "Amount must be a positive number",
		})
	case errors.Is(err, billing.ErrInvalidCheckout):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.As(err, &upstream):
		fiberlog.Errorf("%s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "upstream_error",
			"message": "Payment provider unavailable",
		})
	default:
		return internalError(c, err)
	}
}

// authStatus is the HTTP status of a failed auth result.
func authStatus(code auth.ErrorCode) int {
	switch code {
	case auth.EmailAlreadyExists:
		return fiber.StatusConflict
	case auth.WeakPassword:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusUnauthorized
	}
}
