package usage

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// RemoteCache is the optional distributed backing for TTLCache, satisfied
// by a thin wrapper around *redis.Client (see internal/cachebackend).
// When nil, TTLCache falls back to its in-process map entirely — a
// single-instance deployment needs nothing extra ( "in-memory TTL
// caches" design note).
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type cacheEntry[T any] struct {
	value T
	expiresAt time.Time
}

// TTLCache is a small generic loadOrCompute(key, ttl, fn) cache (
// design note), used for the 15s explore/parity caches. Reads are
// advisory: a stale hit is acceptable, so TTLCache never
// blocks concurrent writers of the same key — last writer wins.
type TTLCache[T any] struct {
	mu sync.RWMutex
	local map[string]cacheEntry[T]
	remote RemoteCache
}

// NewTTLCache builds a TTLCache. remote may be nil.
func NewTTLCache[T any](remote RemoteCache) *TTLCache[T] {
	return &TTLCache[T]{local: make(map[string]cacheEntry[T]), remote: remote}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

// Set stores value for key with the given ttl, mirroring it to the
// remote cache (best-effort; a remote write failure never fails the
// caller since the local map is already authoritative for this process).
func (c *TTLCache[T]) Set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	c.local[key] = cacheEntry[T]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	if c.remote == nil {
		return
	}
	if raw, err := json.Marshal(value); err == nil {
		_ = c.remote.Set(context.Background(), key, raw, ttl)
	}
}

// LoadOrCompute returns the cached value for key, computing and storing it
// via fn on a miss. Concurrent misses for the same key may both invoke fn;
// the results are commutative for the read-through caches this is used
// for (explore/parity queries), so no extra coordination is needed.
func (c *TTLCache[T]) LoadOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
