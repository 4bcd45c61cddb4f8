package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/SubFox/internal/pkg/env"
)

func TestOptionsFromEnv(t *testing.T) {
	prev := env.Env
	env.Env = map[string]string{"CACHE_HOST": "redis", "CACHE_PORT": "6380", "CACHE_PASSWORD": "pw"}
	t.Cleanup(func() { env.Env = prev })

	opts := Options()
	assert.Equal(t, "redis:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 0, opts.DB)
}

func TestPingUnreachable(t *testing.T) {
	prev := client
	t.Cleanup(func() { client = prev })

	SetClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1}))
	assert.Error(t, Ping(context.Background()))
}
