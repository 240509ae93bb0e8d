package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuotaTracker_GrantsExactlyMaxCalls(t *testing.T) {
	clock := newFakeClock()
	tracker := NewQuotaTracker(clock, map[string]ProviderLimit{
		ProviderAlphaVantage: {MaxCalls: 5, Window: time.Minute},
	})

	granted := 0
	for i := 0; i < 10; i++ {
		if tracker.TryAcquire(ProviderAlphaVantage) {
			granted++
		}
	}

	assert.Equal(t, 5, granted)
	assert.Equal(t, 0, tracker.Remaining(ProviderAlphaVantage))
}

func TestQuotaTracker_WindowReset(t *testing.T) {
	clock := newFakeClock()
	tracker := NewQuotaTracker(clock, map[string]ProviderLimit{
		ProviderCoinGecko: {MaxCalls: 2, Window: time.Minute},
	})

	assert.True(t, tracker.TryAcquire(ProviderCoinGecko))
	assert.True(t, tracker.TryAcquire(ProviderCoinGecko))
	assert.False(t, tracker.TryAcquire(ProviderCoinGecko))

	// Just short of the window: still denied
	clock.Advance(59 * time.Second)
	assert.False(t, tracker.TryAcquire(ProviderCoinGecko))

	// Window elapsed: counter resets
	clock.Advance(time.Second)
	assert.True(t, tracker.TryAcquire(ProviderCoinGecko))
}

func TestQuotaTracker_ProvidersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	tracker := NewQuotaTracker(clock, map[string]ProviderLimit{
		ProviderAlphaVantage: {MaxCalls: 1, Window: time.Minute},
		ProviderCoinGecko:    {MaxCalls: 1, Window: time.Minute},
	})

	assert.True(t, tracker.TryAcquire(ProviderAlphaVantage))
	assert.False(t, tracker.TryAcquire(ProviderAlphaVantage))
	assert.True(t, tracker.TryAcquire(ProviderCoinGecko))
}

func TestQuotaTracker_UnknownProviderIsUnlimited(t *testing.T) {
	tracker := NewQuotaTracker(newFakeClock(), nil)
	for i := 0; i < 100; i++ {
		assert.True(t, tracker.TryAcquire("unconfigured"))
	}
}

func TestQuotaTracker_ConcurrentCallersNeverExceedBudget(t *testing.T) {
	clock := newFakeClock()
	tracker := NewQuotaTracker(clock, map[string]ProviderLimit{
		ProviderAlphaVantage: {MaxCalls: 5, Window: time.Minute},
	})

	var mu sync.Mutex
	granted := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.TryAcquire(ProviderAlphaVantage) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
}
