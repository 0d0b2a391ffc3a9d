// Package cache provides the fetch cache for data that never changes for a given head commit.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const cleanupInterval = 5 * time.Minute

type entry struct {
	expiration time.Time
	value      []byte
}

// Cache is an in-memory Store.
type Cache struct {
	entries map[string]entry
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
}

// New creates an in-memory cache and starts its background expiry sweep.
func New() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

// Lookup returns a value if present and not expired.
func (c *Cache) Lookup(_ context.Context, key string) ([]byte, HitType) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, Miss
	}

	if time.Now().After(e.expiration) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiration) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, Miss
	}
	return e.value, HitMemory
}

// Set stores a value until ttl elapses. Non-positive TTLs are ignored.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiration: time.Now().Add(ttl)}
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the expiry sweep.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) cleanupExpired() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired(time.Now())
		}
	}
}

func (c *Cache) removeExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, key)
		}
	}
}

// GetJSON decodes a cached value into v. Undecodable entries count as a miss.
func GetJSON(ctx context.Context, s Store, key string, v any) HitType {
	if s == nil {
		return Miss
	}
	data, hit := s.Lookup(ctx, key)
	if hit == Miss {
		return Miss
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("Discarding undecodable cache entry", "component", "cache", "key", key, "error", err)
		return Miss
	}
	return hit
}

// SetJSON encodes v and stores it.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) {
	if s == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to encode cache entry", "component", "cache", "key", key, "error", err)
		return
	}
	s.Set(ctx, key, data, ttl)
}
