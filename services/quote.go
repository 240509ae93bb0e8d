package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifiers used by the quota tracker.
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderCoinGecko    = "coingecko"
)

// Engine failure taxonomy. Every upstream problem is converted into one of
// these at the adapter boundary so callers can skip-and-continue instead of
// propagating faults.
var (
	// ErrRateLimited means the provider quota is exhausted; no network call
	// was made. Defer, do not retry immediately.
	ErrRateLimited = errors.New("provider quota exhausted")

	// ErrUpstream covers transport and HTTP-level failures. Transient,
	// retryable on the next scheduled pass.
	ErrUpstream = errors.New("upstream request failed")

	// ErrInvalidResponse covers provider error payloads and responses
	// missing required fields.
	ErrInvalidResponse = errors.New("invalid upstream response")

	// ErrInstrumentNotFound means the instrument identity is unknown. The
	// only failure surfaced to end callers.
	ErrInstrumentNotFound = errors.New("instrument not found")
)

// NormalizedQuote is the provider-agnostic snapshot extracted from an
// upstream response. WeeklyChangePercent is nil when the provider does not
// supply it. A zero Volume from the crypto adapter means "unavailable", not
// a real zero.
type NormalizedQuote struct {
	Price               decimal.Decimal  `json:"price"`
	ChangePercent       decimal.Decimal  `json:"change_percent"`
	WeeklyChangePercent *decimal.Decimal `json:"weekly_change_percent,omitempty"`
	High                decimal.Decimal  `json:"high"`
	Low                 decimal.Decimal  `json:"low"`
	Volume              int64            `json:"volume"`
	ObservedAt          time.Time        `json:"observed_at"`
}
