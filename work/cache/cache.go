package cache

import (
	"sync"
	"time"
)

// Cache provides a thread-safe in-memory string cache with time-based
// expiration. It backs the sticky provider selection for redirect playback
// (a player that tuned a stream keeps getting the same provider for the
// length of a game) and short-lived schedule payloads.
type Cache struct {
	entries  map[string]cacheEntry
	mu       sync.RWMutex
	duration time.Duration
}

// cacheEntry represents a single cached item with its expiry timestamp.
type cacheEntry struct {
	value   string
	expires time.Time
}

// New creates a Cache whose entries expire after the given default duration.
func New(duration time.Duration) *Cache {
	return &Cache{
		entries:  make(map[string]cacheEntry),
		duration: duration,
	}
}

// Get retrieves a value by key. Expired entries report as absent.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expires) {
		return "", false
	}
	return entry.value, true
}

// Set stores a value with the cache's default expiration.
func (c *Cache) Set(key, value string) {
	c.SetWithTTL(key, value, c.duration)
}

// SetWithTTL stores a value with an explicit time-to-live.
func (c *Cache) SetWithTTL(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		value:   value,
		expires: time.Now().Add(ttl),
	}
}

// Delete removes a key outright.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep drops expired entries so long-running processes don't accumulate
// dead keys. Run periodically from a maintenance goroutine.
func (c *Cache) Sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}
