package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	webhookReceivedKey = "billing:counters:webhooks:received"
	webhookFailedKey   = "billing:counters:webhooks:failed"
)

// WebhookCounter counts webhook deliveries per event type in Redis hashes.
// A nil *WebhookCounter counts nothing.
type WebhookCounter struct {
	rdb *redis.Client
}

func NewWebhookCounter(rdb *redis.Client) *WebhookCounter {
	return &WebhookCounter{rdb: rdb}
}

// AddReceived increments the counter of verified deliveries of eventType.
func (c *WebhookCounter) AddReceived(ctx context.Context, eventType string) error {
	return c.incr(ctx, webhookReceivedKey, eventType)
}

// AddFailed increments the counter of deliveries rejected for reason.
func (c *WebhookCounter) AddFailed(ctx context.Context, reason string) error {
	return c.incr(ctx, webhookFailedKey, reason)
}

func (c *WebhookCounter) incr(ctx context.Context, key, field string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if field == "" {
		field = "unknown"
	}
	return c.rdb.HIncrBy(ctx, key, field, 1).Err()
}

// Snapshot holds the current counter values.
type Snapshot struct {
	Received map[string]int64 `json:"received"`
	Failed   map[string]int64 `json:"failed"`
}

func (c *WebhookCounter) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Received: map[string]int64{}, Failed: map[string]int64{}}
	if c == nil || c.rdb == nil {
		return snap, nil
	}

	var err error
	if snap.Received, err = c.read(ctx, webhookReceivedKey); err != nil {
		return snap, err
	}
	if snap.Failed, err = c.read(ctx, webhookFailedKey); err != nil {
		return snap, err
	}
	return snap, nil
}

func (c *WebhookCounter) read(ctx context.Context, key string) (map[string]int64, error) {
	data, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for field, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

// Reset drops all webhook counters.
func (c *WebhookCounter) Reset(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, webhookReceivedKey, webhookFailedKey).Err()
}
