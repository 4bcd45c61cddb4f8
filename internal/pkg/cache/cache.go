package cache

import (
	"context"
	"fmt"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/SubFox/internal/pkg/env"
)

var client *redis.Client

// Options returns the Redis connection settings from the environment.
func Options() *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	}
}

// SetupCache initializes the connection to the Redis server. An unreachable
// server is logged; sessions and rate limits fail per request until it is up.
func SetupCache() {
	client = redis.NewClient(Options())

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		fiberlog.Warnf("Could not connect to cache: %v", err)
	} else {
		fiberlog.Infof("Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// SetClient replaces the client, e.g. with one pointing at a test server.
func SetClient(c *redis.Client) {
	client = c
}

// Ping reports whether the cache server answers.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}
