package session

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/SubFox/internal/pkg/cache"
	"github.com/ManuelReschke/SubFox/internal/pkg/env"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// Redis databases used besides the cache (DB 0).
const (
	SessionDatabase = 1
	LimiterDatabase = 2
)

var sessionStore *session.Store

// NewRedisStorage creates a fiber storage on the configured Redis server.
func NewRedisStorage(database int) *redis.Storage {
	opts := cache.Options()
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: database,
		Reset:    false,
	})
}

// NewSessionStore creates the Redis backed session store.
func NewSessionStore() *session.Store {
	sessionStore = session.New(session.Config{
		Storage:        NewRedisStorage(SessionDatabase),
		CookieHTTPOnly: true,
		CookieSecure:   !env.IsDev(),
		CookieSameSite: "Lax",
		Expiration:     time.Hour * 1,
		KeyLookup:      "cookie:session_id",
	})
	return sessionStore
}

// SetSessionStore replaces the store, e.g. with an in-memory one in tests.
func SetSessionStore(s *session.Store) {
	sessionStore = s
}

func GetSessionStore() *session.Store {
	return sessionStore
}

// Login binds the user to a fresh session id.
func Login(c *fiber.Ctx, userID uint, email string) error {
	if sessionStore == nil {
		return fmt.Errorf("session store not initialized")
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	sess.Set(usercontext.KeyUserID, userID)
	sess.Set(usercontext.KeyUserEmail, email)
	return sess.Save()
}

// Logout destroys the current session.
func Logout(c *fiber.Ctx) error {
	if sessionStore == nil {
		return fmt.Errorf("session store not initialized")
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	return sess.Destroy()
}

// CurrentUser returns the user bound to the request's session.
func CurrentUser(c *fiber.Ctx) (uint, string, bool) {
	if sessionStore == nil {
		return 0, "", false
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return 0, "", false
	}
	id, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || id == 0 {
		return 0, "", false
	}
	email, _ := sess.Get(usercontext.KeyUserEmail).(string)
	return id, email, true
}
