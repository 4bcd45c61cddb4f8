package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/auth"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/cache"
	"github.com/ManuelReschke/SubFox/internal/pkg/database"
	"github.com/ManuelReschke/SubFox/internal/pkg/env"
	"github.com/ManuelReschke/SubFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/SubFox/internal/pkg/router"
	"github.com/ManuelReschke/SubFox/internal/pkg/session"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	session.NewSessionStore()

	// Define possible base paths
	basePaths := []string{
		"./",     // Current directory
		"../../", // From cmd/subfox to project root
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	repos := repository.NewFactory(database.GetDB()).GetRepositories()

	authService, err := auth.NewService(repos.User, env.GetEnvInt("BCRYPT_COST", 0))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	gateway := billing.NewStripeGateway(billing.StripeConfig{
		SecretKey:         env.GetEnv("STRIPE_SECRET_KEY", ""),
		WebhookSecret:     env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		APIURL:            env.GetEnv("STRIPE_API_URL", ""),
		HTTPTimeout:       env.GetEnvDuration("STRIPE_HTTP_TIMEOUT", 0),
		MaxNetworkRetries: int64(env.GetEnvInt("STRIPE_MAX_NETWORK_RETRIES", 2)),
	})
	billingService := billing.NewService(gateway, repos.WebhookEvent)

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics, webhook counters are registered below /metrics by the router
	app.Use("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}))
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Auth:           authService,
		Billing:        billingService,
		PublishableKey: env.GetEnv("STRIPE_PUBLISHABLE_KEY", ""),
		PublicDomain:   env.GetEnv("PUBLIC_DOMAIN", ""),
		LimiterStorage: session.NewRedisStorage(session.LimiterDatabase),
		WebhookCounter: counter.NewWebhookCounter(cache.GetClient()),
		HealthChecks: map[string]controllers.HealthCheck{
			"database": database.Ping,
			"cache":    cache.Ping,
		},
	})

	return app
}
