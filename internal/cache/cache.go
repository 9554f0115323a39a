// Package cache is a process-wide TTL cache for computed query results.
//
// Entries carry an absolute expiry evaluated against an injected Clock.
// Expired entries are never removed; they read as misses until a later Put
// with the same key overwrites them.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"solana-trade-inspector/internal/idhash"
	"solana-trade-inspector/internal/observability"
)

// DefaultTTL is the lifetime of cached aggregate results.
const DefaultTTL = 300 * time.Second

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache maps query fingerprints to results. It is safe for concurrent use.
type Cache struct {
	items *gocache.Cache
	clock Clock
}

// New creates a cache. A nil clock selects SystemClock.
func New(clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Cache{
		// Expiry is tracked per entry against clock, so the backing store
		// never expires items and runs no janitor.
		items: gocache.New(gocache.NoExpiration, 0),
		clock: clock,
	}
}

// Put stores value under key until now+ttl, overwriting any previous entry.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	c.items.Set(key, entry{value: value, expiresAt: c.clock.Now().Add(ttl)}, gocache.NoExpiration)
}

// Get returns the value stored under key if it has not expired.
func (c *Cache) Get(key string) (any, bool) {
	raw, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(entry)
	if !c.clock.Now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Key builds a deterministic cache key from a prefix and canonical parts.
func Key(prefix string, parts ...any) string {
	return idhash.ComputeQueryKey(prefix, parts...)
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent misses on one key may both compute; the last write
// wins. Errors are not cached.
func GetOrCompute[T any](c *Cache, name, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			observability.RecordCacheLookup(name, true)
			return t, nil
		}
	}
	observability.RecordCacheLookup(name, false)

	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Put(key, v, ttl)
	return v, nil
}
