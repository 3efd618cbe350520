package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache shares tenant snapshots across instances. Values are JSON so
// a rolling deploy with a different binary can still read them; misses and
// redis errors both fall through to the provider.
type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a redis-backed cache. Keys are namespaced under
// the given prefix ("tenant" when empty).
func NewRedisCache(client *redis.Client, prefix string) Cache {
	if prefix == "" {
		prefix = "tenant"
	}
	return &redisCache{client: client, prefix: prefix}
}

func (c *redisCache) Get(ctx context.Context, key string) (*Info, bool) {
	data, err := c.client.Get(ctx, c.prefix+":"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		// A corrupt entry behaves like a miss; the next Set overwrites it.
		return nil, false
	}
	return &info, true
}

func (c *redisCache) Set(ctx context.Context, key string, info *Info, ttl time.Duration) {
	if info == nil {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.prefix+":"+key, data, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	_ = c.client.Del(ctx, c.prefix+":"+key).Err()
}

func (c *redisCache) Close() error {
	// The client is shared; its lifecycle belongs to the caller.
	return nil
}
