package services

import (
	"context"
	"log"
	"time"

	"fintrack_backend/models"
)

// Quote source labels reported on detail responses.
const (
	QuoteSourceCache = "cache"
	QuoteSourceLive  = "live"
	QuoteSourceStale = "stale"
)

// InstrumentDetails is an instrument record merged with its freshest
// available quote. QuoteSource says where the quote came from; with "stale"
// the Quote mirrors the last-persisted record fields.
type InstrumentDetails struct {
	Instrument  models.Instrument `json:"instrument"`
	Quote       NormalizedQuote   `json:"quote"`
	QuoteSource string            `json:"quote_source"`
}

// LookupService is the synchronous request-time path. It reads through the
// quote cache and degrades to the persisted record when an upstream fetch is
// not possible: freshness is best-effort, availability is guaranteed.
type LookupService struct {
	store    InstrumentStore
	adapters AdapterSet
	cache    *QuoteCache
	cacheTTL time.Duration
}

// NewLookupService creates a lookup service. cacheTTL is the TTL used for
// write-through entries on a cache miss, conservative next to the refresh
// scheduler's TTL.
func NewLookupService(store InstrumentStore, adapters AdapterSet, cache *QuoteCache, cacheTTL time.Duration) *LookupService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &LookupService{
		store:    store,
		adapters: adapters,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// GetDetails returns the instrument with its freshest quote. The only error
// it returns is ErrInstrumentNotFound (or a storage failure); every upstream
// problem falls back to stale persisted data.
func (l *LookupService) GetDetails(ctx context.Context, instrumentID uint) (*InstrumentDetails, error) {
	inst, err := l.store.FindByID(instrumentID)
	if err != nil {
		return nil, err
	}

	if entry, ok := l.cache.Get(inst.ID); ok {
		return &InstrumentDetails{
			Instrument:  *inst,
			Quote:       entry.Quote,
			QuoteSource: QuoteSourceCache,
		}, nil
	}

	adapter, ok := l.adapters.ForInstrument(inst)
	if ok {
		quote, err := adapter.FetchQuote(ctx, inst.Symbol)
		if err == nil {
			if err := l.store.UpdateQuote(inst.ID, quote); err != nil {
				log.Printf("Failed to persist lookup quote for %s: %v", inst.Symbol, err)
			}
			l.cache.Put(inst.ID, *quote, l.cacheTTL)
			return &InstrumentDetails{
				Instrument:  *inst,
				Quote:       *quote,
				QuoteSource: QuoteSourceLive,
			}, nil
		}
		log.Printf("Lookup falling back to stale data for %s: %v", inst.Symbol, err)
	}

	return &InstrumentDetails{
		Instrument:  *inst,
		Quote:       staleQuote(inst),
		QuoteSource: QuoteSourceStale,
	}, nil
}

// staleQuote rebuilds a quote from the last-persisted record fields.
func staleQuote(inst *models.Instrument) NormalizedQuote {
	observed := time.Time{}
	if inst.LastUpdated != nil {
		observed = *inst.LastUpdated
	}
	weekly := inst.WeeklyChange
	return NormalizedQuote{
		Price:               inst.CurrentPrice,
		ChangePercent:       inst.DailyChange,
		WeeklyChangePercent: &weekly,
		High:                inst.DailyHigh,
		Low:                 inst.DailyLow,
		Volume:              inst.Volume,
		ObservedAt:          observed,
	}
}
