package audit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache holds recently resolved submissions so operator lookups skip the database.
// A miss is reported as redis.Nil.
type Cache interface {
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// RedisCache stores payloads under a fixed key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache returns a cache writing keys as prefix+key.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, payload, ttl).Err()
}

func (c *RedisCache) Fetch(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, c.prefix+key).Bytes()
}
