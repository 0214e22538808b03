package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores the last good raw product list in Redis so a fresh process can
// warm its catalog before the first upstream fetch completes.
type Cache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client yields a no-op cache.
func NewCache(client *redis.Client, key string, ttl time.Duration) *Cache {
	return &Cache{client: client, key: key, ttl: ttl}
}

// Get returns the cached raw products and whether the key existed.
func (c *Cache) Get(ctx context.Context) ([]RawProduct, bool, error) {
	if c == nil || c.client == nil || c.key == "" {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var raw []RawProduct
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set stores the raw products with the configured TTL.
func (c *Cache) Set(ctx context.Context, raw []RawProduct) error {
	if c == nil || c.client == nil || c.key == "" {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}
