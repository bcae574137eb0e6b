package middleware

import (
	"sync"
	"time"
)

// Cache is a simple in-memory cache with expiration
type Cache[V any] struct {
	items map[string]cacheItem[V]
	mu    sync.Mutex
}

type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

// NewCache creates a new Cache
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{
		items: make(map[string]cacheItem[V]),
	}
}

// GetOrCreate returns the cached value for key, creating it with create when missing or
// expired. Either way the entry's expiration is pushed out to now+ttl.
func (c *Cache[V]) GetOrCreate(key string, ttl time.Duration, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	item, found := c.items[key]
	if !found || now.After(item.expiration) {
		item.value = create()
	}
	item.expiration = now.Add(ttl)
	c.items[key] = item
	return item.value
}

// Len returns the number of entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanupExpired removes expired items from the cache
func (c *Cache[V]) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}
