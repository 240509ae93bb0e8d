package services

import (
	"sync"
	"time"
)

// CacheEntry is a cached quote with its write time and time-to-live.
// Entries are replaced wholesale on refresh, never mutated in place.
type CacheEntry struct {
	Quote    NormalizedQuote
	CachedAt time.Time
	TTL      time.Duration
}

// QuoteCache is a thread-safe expiring store keyed by instrument id. It is a
// pure store: read-through behavior lives in the callers. Expired entries are
// dropped lazily on access; no sweeper runs.
type QuoteCache struct {
	mu      sync.RWMutex
	clock   Clock
	entries map[uint]CacheEntry
}

// NewQuoteCache creates an empty cache.
func NewQuoteCache(clock Clock) *QuoteCache {
	if clock == nil {
		clock = SystemClock
	}
	return &QuoteCache{
		clock:   clock,
		entries: make(map[uint]CacheEntry),
	}
}

// Get returns the entry for an instrument if it is still within its TTL.
// An entry written TTL or more ago is treated as absent and evicted.
func (c *QuoteCache) Get(instrumentID uint) (CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[instrumentID]
	c.mu.RUnlock()
	if !ok {
		return CacheEntry{}, false
	}

	if c.clock.Now().Sub(entry.CachedAt) >= entry.TTL {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have refreshed it
		if cur, ok := c.entries[instrumentID]; ok && cur.CachedAt.Equal(entry.CachedAt) {
			delete(c.entries, instrumentID)
		}
		c.mu.Unlock()
		return CacheEntry{}, false
	}
	return entry, true
}

// Put stores a quote for an instrument with the given TTL.
func (c *QuoteCache) Put(instrumentID uint, quote NormalizedQuote, ttl time.Duration) {
	c.mu.Lock()
	c.entries[instrumentID] = CacheEntry{
		Quote:    quote,
		CachedAt: c.clock.Now(),
		TTL:      ttl,
	}
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
