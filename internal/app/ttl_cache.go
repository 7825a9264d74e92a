package app

import (
	"sync"
	"time"

	"polytracker/clients/polymarketapi"
)

// Cache key namespaces.
const (
	traderKeyPrefix = "trader-"
	closedKeyPrefix = "closed-"
)

// cacheEntry is a cached value with its expiry.
type cacheEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// TTLCache is a map with per-entry expiry. Expired entries are removed
// lazily on the next Get for that key; there is no background sweep and no
// capacity bound.
type TTLCache[V any] struct {
	now func() time.Time

	mu   sync.Mutex
	data map[string]cacheEntry[V]
}

// NewTTLCache creates an empty cache. A nil now uses time.Now.
func NewTTLCache[V any](now func() time.Time) *TTLCache[V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{
		now:  now,
		data: make(map[string]cacheEntry[V]),
	}
}

// Get returns the value for key if present and unexpired. An expired entry
// is deleted as a side effect.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(entry.ExpiresAt) {
		delete(c.data, key)
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key, replacing any existing entry.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry[V]{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}
}

// Len returns the number of stored entries, including expired ones that
// have not been read since expiring.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// TraderCache holds the two cache namespaces shared by the closed-positions
// fetcher, the aggregator and the refresh loop. It is constructed once per
// process and passed to each of them.
type TraderCache struct {
	snapshots *TTLCache[*TraderSnapshot]
	closed    *TTLCache[[]polymarketapi.ClosedPosition]
}

func NewTraderCache(now func() time.Time) *TraderCache {
	return &TraderCache{
		snapshots: NewTTLCache[*TraderSnapshot](now),
		closed:    NewTTLCache[[]polymarketapi.ClosedPosition](now),
	}
}

func (c *TraderCache) GetSnapshot(address string) (*TraderSnapshot, bool) {
	return c.snapshots.Get(traderKeyPrefix + address)
}

func (c *TraderCache) SetSnapshot(address string, s *TraderSnapshot, ttl time.Duration) {
	c.snapshots.Set(traderKeyPrefix+address, s, ttl)
}

// GetClosed returns the cached closed positions for address. A cached empty
// list is a hit.
func (c *TraderCache) GetClosed(address string) ([]polymarketapi.ClosedPosition, bool) {
	return c.closed.Get(closedKeyPrefix + address)
}

func (c *TraderCache) SetClosed(address string, rows []polymarketapi.ClosedPosition, ttl time.Duration) {
	c.closed.Set(closedKeyPrefix+address, rows, ttl)
}

// Len returns the total entry count across both namespaces.
func (c *TraderCache) Len() int {
	return c.snapshots.Len() + c.closed.Len()
}

// Sizes returns the entry count per namespace.
func (c *TraderCache) Sizes() (snapshots, closed int) {
	return c.snapshots.Len(), c.closed.Len()
}
