package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fermata/model"

	"github.com/redis/go-redis/v9"
)

const pendingQueueKey = "moderation:pending"

// QueueCache caches the pending-compositions view in Redis. Every approval
// mutation invalidates it, so a hit is never older than the last confirmed
// transition.
type QueueCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueueCache creates a cache with the given TTL.
func NewQueueCache(client *redis.Client, ttl time.Duration) *QueueCache {
	return &QueueCache{client: client, ttl: ttl}
}

// Get returns the cached pending view, or ok=false on miss or error.
func (c *QueueCache) Get(ctx context.Context) ([]model.CompositionSummary, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	payload, err := c.client.Get(ctx, pendingQueueKey).Bytes()
	if err != nil {
		return nil, false
	}

	var items []model.CompositionSummary
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Set stores the pending view with the configured TTL.
func (c *QueueCache) Set(ctx context.Context, items []model.CompositionSummary) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal pending queue: %w", err)
	}

	if err := c.client.Set(ctx, pendingQueueKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache pending queue: %w", err)
	}
	return nil
}

// Invalidate drops the cached view.
func (c *QueueCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, pendingQueueKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to invalidate pending queue: %w", err)
	}
	return nil
}
