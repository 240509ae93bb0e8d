package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteCache_FreshEntryIsReturned(t *testing.T) {
	clock := newFakeClock()
	cache := NewQuoteCache(clock)

	quote := NormalizedQuote{Price: decimal.NewFromInt(100), ObservedAt: clock.Now()}
	cache.Put(1, quote, 300*time.Second)

	clock.Advance(299 * time.Second)
	entry, ok := cache.Get(1)
	require.True(t, ok)
	assert.True(t, entry.Quote.Price.Equal(decimal.NewFromInt(100)))
}

func TestQuoteCache_ExpiredEntryIsAbsent(t *testing.T) {
	clock := newFakeClock()
	cache := NewQuoteCache(clock)

	cache.Put(1, NormalizedQuote{Price: decimal.NewFromInt(100)}, 300*time.Second)

	// Exactly at TTL counts as expired
	clock.Advance(300 * time.Second)
	_, ok := cache.Get(1)
	assert.False(t, ok)

	// Expired entries are lazily dropped
	assert.Equal(t, 0, cache.Len())
}

func TestQuoteCache_MissingKeyIsAbsent(t *testing.T) {
	cache := NewQuoteCache(newFakeClock())
	_, ok := cache.Get(42)
	assert.False(t, ok)
}

func TestQuoteCache_PutReplacesWholesale(t *testing.T) {
	clock := newFakeClock()
	cache := NewQuoteCache(clock)

	cache.Put(1, NormalizedQuote{Price: decimal.NewFromInt(100)}, 60*time.Second)
	clock.Advance(59 * time.Second)
	cache.Put(1, NormalizedQuote{Price: decimal.NewFromInt(200)}, 60*time.Second)

	// The replacement carries its own write time and TTL
	clock.Advance(30 * time.Second)
	entry, ok := cache.Get(1)
	require.True(t, ok)
	assert.True(t, entry.Quote.Price.Equal(decimal.NewFromInt(200)))
}
