package services

import (
	"context"
	"log"
	"sync"
	"time"

	"fintrack_backend/models"
)

// QuoteSink receives every successfully refreshed quote. Sinks are
// best-effort: the archive, the cloud backup and the websocket stream all
// hang off this without being able to fail a pass.
type QuoteSink interface {
	OnQuoteRefreshed(instrument models.Instrument, quote NormalizedQuote)
}

// PassResult summarizes one full sweep of the instrument universe.
type PassResult struct {
	Total      int       `json:"total"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RefreshScheduler drives batch refresh passes over the instrument universe.
// Within a batch, fetches run concurrently and are joined before the next
// batch starts; batches are spaced apart by a cooperative delay layered on
// top of the hard quota gate. Passes never overlap.
type RefreshScheduler struct {
	store      InstrumentStore
	adapters   AdapterSet
	cache      *QuoteCache
	cacheTTL   time.Duration
	batchSize  int
	batchDelay time.Duration
	sinks      []QuoteSink

	// passMu serializes passes; status fields are guarded by mu
	passMu sync.Mutex
	mu     sync.RWMutex
	active bool
	last   *PassResult
}

// RefreshSchedulerConfig tunes a RefreshScheduler.
type RefreshSchedulerConfig struct {
	BatchSize  int
	BatchDelay time.Duration
	CacheTTL   time.Duration
}

// NewRefreshScheduler creates a scheduler. Zero config fields fall back to
// the defaults (batch of 5, 5 minute delay, 15 minute cache TTL).
func NewRefreshScheduler(store InstrumentStore, adapters AdapterSet, cache *QuoteCache, cfg RefreshSchedulerConfig, sinks ...QuoteSink) *RefreshScheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 5 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &RefreshScheduler{
		store:      store,
		adapters:   adapters,
		cache:      cache,
		cacheTTL:   cfg.CacheTTL,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		sinks:      sinks,
	}
}

// RunPass performs one full pass. A pass that starts while another is
// running waits its turn; passes are strictly serialized.
func (s *RefreshScheduler) RunPass(ctx context.Context) (*PassResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return s.runPassLocked(ctx)
}

// TryRunPass starts a pass in the background using ctx, unless one is
// already running. Returns false when skipped. Used by the "update all"
// endpoint so the request returns immediately.
func (s *RefreshScheduler) TryRunPass(ctx context.Context) bool {
	if !s.passMu.TryLock() {
		return false
	}
	go func() {
		defer s.passMu.Unlock()
		if _, err := s.runPassLocked(ctx); err != nil {
			log.Printf("Triggered refresh pass failed: %v", err)
		}
	}()
	return true
}

// IsRunning reports whether a pass is in flight.
func (s *RefreshScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// LastResult returns the most recent completed pass, or nil.
func (s *RefreshScheduler) LastResult() *PassResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

func (s *RefreshScheduler) runPassLocked(ctx context.Context) (*PassResult, error) {
	s.setActive(true)
	defer s.setActive(false)

	result := &PassResult{StartedAt: time.Now()}

	instruments, err := s.store.ListAll()
	if err != nil {
		log.Printf("Refresh pass aborted, cannot load instruments: %v", err)
		return nil, err
	}
	result.Total = len(instruments)
	log.Printf("Refresh pass started: %d instruments, batch size %d", len(instruments), s.batchSize)

	for start := 0; start < len(instruments); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			log.Printf("Refresh pass canceled after %d/%d instruments", start, len(instruments))
			return result, err
		}

		end := start + s.batchSize
		if end > len(instruments) {
			end = len(instruments)
		}
		batch := instruments[start:end]

		updated := s.runBatch(ctx, batch)
		result.Updated += updated
		result.Failed += len(batch) - updated
		log.Printf("Refreshed batch of %d instruments (%d updated)", len(batch), updated)

		// Cooperative throttle between batches; the last batch skips it
		if end < len(instruments) && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				log.Printf("Refresh pass canceled during inter-batch delay")
				return result, ctx.Err()
			case <-time.After(s.batchDelay):
			}
		}
	}

	result.FinishedAt = time.Now()
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	log.Printf("Refresh pass completed: %d updated, %d failed of %d", result.Updated, result.Failed, result.Total)
	return result, nil
}

// runBatch dispatches one concurrent fetch per instrument and joins them all
// before returning. A per-instrument failure is logged and skipped; it never
// aborts the batch.
func (s *RefreshScheduler) runBatch(ctx context.Context, batch []models.Instrument) int {
	var wg sync.WaitGroup
	results := make([]bool, len(batch))

	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.refreshOne(ctx, &batch[i])
		}(i)
	}
	wg.Wait()

	updated := 0
	for _, ok := range results {
		if ok {
			updated++
		}
	}
	return updated
}

func (s *RefreshScheduler) refreshOne(ctx context.Context, inst *models.Instrument) bool {
	adapter, ok := s.adapters.ForInstrument(inst)
	if !ok {
		log.Printf("No adapter for instrument %s (type %s), skipping", inst.Symbol, inst.Type)
		return false
	}

	quote, err := adapter.FetchQuote(ctx, inst.Symbol)
	if err != nil {
		log.Printf("Skipping %s: %v", inst.Symbol, err)
		return false
	}

	if err := s.store.UpdateQuote(inst.ID, quote); err != nil {
		log.Printf("Failed to persist quote for %s: %v", inst.Symbol, err)
		return false
	}
	s.cache.Put(inst.ID, *quote, s.cacheTTL)

	for _, sink := range s.sinks {
		sink.OnQuoteRefreshed(*inst, *quote)
	}
	return true
}

func (s *RefreshScheduler) setActive(v bool) {
	s.mu.Lock()
	s.active = v
	s.mu.Unlock()
}
