package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack_backend/models"
)

// ProviderAdapter fetches and normalizes one symbol's quote from its
// upstream provider. Expected failure modes (quota, transport, shape) are
// returned as errors wrapping the engine taxonomy, never panics.
type ProviderAdapter interface {
	Provider() string
	FetchQuote(ctx context.Context, symbol string) (*NormalizedQuote, error)
}

// AdapterSet holds one adapter per instrument type.
type AdapterSet map[models.InstrumentType]ProviderAdapter

// ForInstrument selects the adapter handling the given instrument.
func (s AdapterSet) ForInstrument(inst *models.Instrument) (ProviderAdapter, bool) {
	a, ok := s[inst.Type]
	return a, ok
}

// StockAdapter normalizes quotes from the Alpha Vantage GLOBAL_QUOTE endpoint.
type StockAdapter struct {
	baseURL    string
	apiKey     string
	quota      *QuotaTracker
	clock      Clock
	httpClient *http.Client
}

// NewStockAdapter creates a stock adapter. baseURL points at the Alpha
// Vantage query endpoint; tests substitute a local server.
func NewStockAdapter(baseURL, apiKey string, quota *QuotaTracker, clock Clock) *StockAdapter {
	if clock == nil {
		clock = SystemClock
	}
	return &StockAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		quota:   quota,
		clock:   clock,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *StockAdapter) Provider() string { return ProviderAlphaVantage }

// alphaVantageResponse wraps the GLOBAL_QUOTE payload. Quote keys are the
// numbered field names Alpha Vantage uses ("05. price" etc.), so the quote
// itself is decoded as a map.
type alphaVantageResponse struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	ErrorMessage string            `json:"Error Message"`
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
}

// FetchQuote fetches one stock quote. The quota gate runs before any network
// call so a denied permit never costs upstream budget.
func (a *StockAdapter) FetchQuote(ctx context.Context, symbol string) (*NormalizedQuote, error) {
	if !a.quota.TryAcquire(a.Provider()) {
		return nil, fmt.Errorf("%w: %s for %s", ErrRateLimited, a.Provider(), symbol)
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)

	body, err := a.get(ctx, a.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload alphaVantageResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if payload.ErrorMessage != "" || payload.Note != "" || payload.Information != "" {
		return nil, fmt.Errorf("%w: provider error for %s", ErrInvalidResponse, symbol)
	}
	if len(payload.GlobalQuote) == 0 {
		return nil, fmt.Errorf("%w: empty quote for %s", ErrInvalidResponse, symbol)
	}

	return normalizeStockQuote(payload.GlobalQuote, a.clock.Now())
}

func (a *StockAdapter) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return body, nil
}

// normalizeStockQuote maps Alpha Vantage field names into a NormalizedQuote.
// When the payload carries no change percent, it is derived from the change
// amount against the previous close (price - change).
func normalizeStockQuote(quote map[string]string, observedAt time.Time) (*NormalizedQuote, error) {
	price, err := requireDecimal(quote, "05. price")
	if err != nil {
		return nil, err
	}
	high, err := requireDecimal(quote, "03. high")
	if err != nil {
		return nil, err
	}
	low, err := requireDecimal(quote, "04. low")
	if err != nil {
		return nil, err
	}

	changePercent, ok := parsePercent(quote["10. change percent"])
	if !ok {
		change, err := requireDecimal(quote, "09. change")
		if err != nil {
			return nil, err
		}
		prevClose := price.Sub(change)
		if prevClose.IsZero() {
			changePercent = decimal.Zero
		} else {
			changePercent = change.DivRound(prevClose, 8).Mul(decimal.NewFromInt(100))
		}
	}

	volume, _ := strconv.ParseInt(quote["06. volume"], 10, 64)

	return &NormalizedQuote{
		Price:         price,
		ChangePercent: changePercent,
		High:          high,
		Low:           low,
		Volume:        volume,
		ObservedAt:    observedAt,
	}, nil
}

func requireDecimal(fields map[string]string, key string) (decimal.Decimal, error) {
	raw, ok := fields[key]
	if !ok || raw == "" {
		return decimal.Zero, fmt.Errorf("%w: missing field %q", ErrInvalidResponse, key)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: field %q: %v", ErrInvalidResponse, key, err)
	}
	return d, nil
}

// parsePercent parses values like "1.2345%".
func parsePercent(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CryptoAdapter normalizes quotes from the CoinGecko simple price endpoint.
type CryptoAdapter struct {
	baseURL    string
	quota      *QuotaTracker
	clock      Clock
	httpClient *http.Client
}

// NewCryptoAdapter creates a crypto adapter. baseURL points at the CoinGecko
// API root (".../api/v3").
func NewCryptoAdapter(baseURL string, quota *QuotaTracker, clock Clock) *CryptoAdapter {
	if clock == nil {
		clock = SystemClock
	}
	return &CryptoAdapter{
		baseURL: baseURL,
		quota:   quota,
		clock:   clock,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *CryptoAdapter) Provider() string { return ProviderCoinGecko }

// FetchQuote fetches one crypto quote. The simple price endpoint carries no
// intraday range and no reliable volume, so high/low fall back to the price
// and volume falls back to 0.
func (a *CryptoAdapter) FetchQuote(ctx context.Context, symbol string) (*NormalizedQuote, error) {
	if !a.quota.TryAcquire(a.Provider()) {
		return nil, fmt.Errorf("%w: %s for %s", ErrRateLimited, a.Provider(), symbol)
	}

	id := strings.ToLower(symbol)
	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")
	params.Set("include_7d_change", "true")
	params.Set("include_24hr_vol", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/simple/price?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	data, ok := payload[id]
	if !ok {
		return nil, fmt.Errorf("%w: no data for %s", ErrInvalidResponse, symbol)
	}
	return normalizeCryptoQuote(data, a.clock.Now())
}

// normalizeCryptoQuote maps a CoinGecko simple price entry into a
// NormalizedQuote. usd is required; everything else is optional.
func normalizeCryptoQuote(data map[string]float64, observedAt time.Time) (*NormalizedQuote, error) {
	usd, ok := data["usd"]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrInvalidResponse, "usd")
	}
	price := decimal.NewFromFloat(usd)

	changePercent := decimal.Zero
	if v, ok := data["usd_24h_change"]; ok {
		changePercent = decimal.NewFromFloat(v)
	}

	var weekly *decimal.Decimal
	if v, ok := data["usd_7d_change"]; ok {
		d := decimal.NewFromFloat(v)
		weekly = &d
	}

	var volume int64
	if v, ok := data["usd_24h_vol"]; ok {
		volume = int64(v)
	}

	return &NormalizedQuote{
		Price:               price,
		ChangePercent:       changePercent,
		WeeklyChangePercent: weekly,
		High:                price,
		Low:                 price,
		Volume:              volume,
		ObservedAt:          observedAt,
	}, nil
}
