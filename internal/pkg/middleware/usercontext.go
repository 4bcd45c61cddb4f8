package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/internal/pkg/session"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session user once per request and
// exposes it through usercontext.
func UserContextMiddleware(c *fiber.Ctx) error {
	userID, email, ok := session.CurrentUser(c)
	if !ok {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{IsLoggedIn: false})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
		UserID:     userID,
		Email:      email,
		IsLoggedIn: true,
	})
	c.Locals(usercontext.KeyFromProtected, true)
	return c.Next()
}
