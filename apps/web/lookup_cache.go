package main

import (
	"sync"
	"time"
)

type ttlEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// ttlCache is a small keyed cache for remote lookup results.
type ttlCache[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]ttlEntry[T]
	now     func() time.Time
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	if ttl <= 0 {
		ttl = defaultLookupCacheTTL
	}
	return &ttlCache[T]{
		ttl:     ttl,
		entries: make(map[string]ttlEntry[T]),
		now:     time.Now,
	}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[T]) set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
}
