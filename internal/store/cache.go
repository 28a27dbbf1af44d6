package store

import (
	"sync"
	"time"
)

// ttlCache 进程内 TTL 缓存（并发安全）
type ttlCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[T]
	now     func() time.Time
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[T]),
		now:     time.Now,
	}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[T]) set(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}
