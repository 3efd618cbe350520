package tenant

import (
	"context"
	"sync"
	"time"
)

// Cache stores tenant snapshots keyed by lookup identity. Implementations
// must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Info, bool)
	Set(ctx context.Context, key string, info *Info, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// KeyByID builds the cache key for a canonical tenant id lookup.
func KeyByID(id string) string { return "id:" + id }

// KeyByDomain builds the cache key for a domain/subdomain lookup.
func KeyByDomain(domain string) string { return "domain:" + domain }

// Invalidate drops a tenant's cached snapshots after a write. The tenants
// and billing modules call it on every status, plan or domain change so
// cached entries never outlive the row they mirror.
func Invalidate(ctx context.Context, c Cache, id, domain string) {
	c.Delete(ctx, KeyByID(id))
	if domain != "" {
		c.Delete(ctx, KeyByDomain(domain))
	}
}

// DefaultCacheSize bounds the in-memory cache.
const DefaultCacheSize = 1000

// memoryCache is an LRU+TTL in-process cache with background cleanup.
type memoryCache struct {
	mu      sync.Mutex
	items   map[string]cacheItem
	lru     []string
	maxSize int
	stop    chan struct{}
	done    chan struct{}
	closed  bool
}

type cacheItem struct {
	info      *Info
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache with the default size limit.
func NewMemoryCache() Cache {
	return NewMemoryCacheWithSize(DefaultCacheSize)
}

// NewMemoryCacheWithSize creates an in-memory cache bounded to maxSize
// entries, evicting least recently used entries first.
func NewMemoryCacheWithSize(maxSize int) Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	c := &memoryCache{
		items:   make(map[string]cacheItem),
		lru:     make([]string, 0, maxSize),
		maxSize: maxSize,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *memoryCache) Get(ctx context.Context, key string) (*Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		delete(c.items, key)
		c.removeLRU(key)
		return nil, false
	}
	c.touchLRU(key)

	// Copy so callers cannot mutate the cached snapshot.
	info := *item.info
	return &info, true
}

func (c *memoryCache) Set(ctx context.Context, key string, info *Info, ttl time.Duration) {
	if info == nil {
		return
	}
	cp := *info

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		if len(c.lru) > 0 {
			evict := c.lru[0]
			delete(c.items, evict)
			c.lru = c.lru[1:]
		}
	}
	c.items[key] = cacheItem{info: &cp, expiresAt: time.Now().Add(ttl)}
	c.touchLRU(key)
}

func (c *memoryCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.removeLRU(key)
}

func (c *memoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			c.removeLRU(key)
		}
	}
}

func (c *memoryCache) touchLRU(key string) {
	c.removeLRU(key)
	c.lru = append(c.lru, key)
}

func (c *memoryCache) removeLRU(key string) {
	for i, k := range c.lru {
		if k == key {
			c.lru = append(c.lru[:i], c.lru[i+1:]...)
			return
		}
	}
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return nil
}

// noopCache disables caching; every lookup goes to the provider.
type noopCache struct{}

// NewNoopCache returns a cache that never stores anything.
func NewNoopCache() Cache { return noopCache{} }

func (noopCache) Get(ctx context.Context, key string) (*Info, bool)                  { return nil, false }
func (noopCache) Set(ctx context.Context, key string, info *Info, ttl time.Duration) {}
func (noopCache) Delete(ctx context.Context, key string)                             {}
func (noopCache) Close() error                                                       { return nil }
