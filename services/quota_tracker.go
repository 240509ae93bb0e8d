package services

import (
	"sync"
	"time"
)

// ProviderLimit is the request budget for one provider within a rolling window.
type ProviderLimit struct {
	MaxCalls int
	Window   time.Duration
}

type quotaWindow struct {
	startedAt time.Time
	calls     int
}

// QuotaTracker is a non-blocking gate enforcing per-provider call budgets.
// Both the refresh scheduler and interactive lookups draw from the same
// counters, so TryAcquire must be mutually exclusive: two racing callers can
// never both take the last slot of a window.
type QuotaTracker struct {
	mu      sync.Mutex
	clock   Clock
	limits  map[string]ProviderLimit
	windows map[string]*quotaWindow
}

// NewQuotaTracker creates a tracker with the given per-provider limits.
func NewQuotaTracker(clock Clock, limits map[string]ProviderLimit) *QuotaTracker {
	if clock == nil {
		clock = SystemClock
	}
	return &QuotaTracker{
		clock:   clock,
		limits:  limits,
		windows: make(map[string]*quotaWindow),
	}
}

// TryAcquire grants a permit for one upstream call, or returns false when the
// provider's window budget is spent. It never blocks. A provider without a
// configured limit is always granted.
func (t *QuotaTracker) TryAcquire(provider string) bool {
	limit, ok := t.limits[provider]
	if !ok || limit.MaxCalls <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	w := t.windows[provider]
	if w == nil || now.Sub(w.startedAt) >= limit.Window {
		// Window elapsed (or first call): reset counter and restart window
		w = &quotaWindow{startedAt: now}
		t.windows[provider] = w
	}

	if w.calls >= limit.MaxCalls {
		return false
	}
	w.calls++
	return true
}

// Remaining reports how many permits are left in the provider's current
// window. Informational only; callers must still use TryAcquire.
func (t *QuotaTracker) Remaining(provider string) int {
	limit, ok := t.limits[provider]
	if !ok || limit.MaxCalls <= 0 {
		return -1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[provider]
	if w == nil || t.clock.Now().Sub(w.startedAt) >= limit.Window {
		return limit.MaxCalls
	}
	return limit.MaxCalls - w.calls
}
