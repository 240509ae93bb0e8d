package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unlimitedQuota() *QuotaTracker {
	return NewQuotaTracker(newFakeClock(), nil)
}

func TestStockAdapter_NormalizesGlobalQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"Global Quote": {
			"01. symbol": "AAPL",
			"03. high": "191.95",
			"04. low": "188.19",
			"05. price": "190.64",
			"06. volume": "52242815",
			"09. change": "1.34",
			"10. change percent": "0.7079%"
		}}`))
	}))
	defer server.Close()

	adapter := NewStockAdapter(server.URL, "test-key", unlimitedQuota(), newFakeClock())
	quote, err := adapter.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "190.64", quote.Price.String())
	assert.Equal(t, "0.7079", quote.ChangePercent.String())
	assert.Equal(t, "191.95", quote.High.String())
	assert.Equal(t, "188.19", quote.Low.String())
	assert.Equal(t, int64(52242815), quote.Volume)
	assert.Nil(t, quote.WeeklyChangePercent)
	assert.False(t, quote.ObservedAt.IsZero())
}

func TestStockAdapter_DerivesChangePercentFromChange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No "10. change percent": derived from change against previous close
		w.Write([]byte(`{"Global Quote": {
			"03. high": "112",
			"04. low": "105",
			"05. price": "110",
			"09. change": "10"
		}}`))
	}))
	defer server.Close()

	adapter := NewStockAdapter(server.URL, "test-key", unlimitedQuota(), newFakeClock())
	quote, err := adapter.FetchQuote(context.Background(), "XYZ")
	require.NoError(t, err)

	// previous close = 110 - 10 = 100, so +10%
	assert.Equal(t, "10", quote.ChangePercent.String())
	assert.Equal(t, int64(0), quote.Volume)
}

func TestStockAdapter_Non200IsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewStockAdapter(server.URL, "test-key", unlimitedQuota(), newFakeClock())
	_, err := adapter.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestStockAdapter_ProviderErrorPayloadIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	}))
	defer server.Close()

	adapter := NewStockAdapter(server.URL, "test-key", unlimitedQuota(), newFakeClock())
	_, err := adapter.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestStockAdapter_MissingPriceIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Global Quote": {"03. high": "112", "04. low": "105"}}`))
	}))
	defer server.Close()

	adapter := NewStockAdapter(server.URL, "test-key", unlimitedQuota(), newFakeClock())
	_, err := adapter.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestStockAdapter_QuotaDeniedMakesNoNetworkCall(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"Global Quote": {"05. price": "1", "03. high": "1", "04. low": "1", "09. change": "0"}}`))
	}))
	defer server.Close()

	clock := newFakeClock()
	quota := NewQuotaTracker(clock, map[string]ProviderLimit{
		ProviderAlphaVantage: {MaxCalls: 1, Window: time.Minute},
	})
	adapter := NewStockAdapter(server.URL, "test-key", quota, clock)

	_, err := adapter.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	_, err = adapter.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestCryptoAdapter_NormalizesFullPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"bitcoin": {
			"usd": 67234.12,
			"usd_24h_change": -1.25,
			"usd_7d_change": 3.5,
			"usd_24h_vol": 28123456789.4
		}}`))
	}))
	defer server.Close()

	adapter := NewCryptoAdapter(server.URL, unlimitedQuota(), newFakeClock())
	quote, err := adapter.FetchQuote(context.Background(), "BITCOIN")
	require.NoError(t, err)

	assert.Equal(t, "67234.12", quote.Price.String())
	assert.Equal(t, "-1.25", quote.ChangePercent.String())
	require.NotNil(t, quote.WeeklyChangePercent)
	assert.Equal(t, "3.5", quote.WeeklyChangePercent.String())
	assert.Equal(t, int64(28123456789), quote.Volume)
}

func TestCryptoAdapter_MinimalPayloadFallsBackToPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The simple endpoint without volume or range data
		w.Write([]byte(`{"dogecoin": {"usd": 0.123, "usd_24h_change": 2.4}}`))
	}))
	defer server.Close()

	adapter := NewCryptoAdapter(server.URL, unlimitedQuota(), newFakeClock())
	quote, err := adapter.FetchQuote(context.Background(), "dogecoin")
	require.NoError(t, err)

	// No intraday range: high and low fall back to the price; volume 0 means
	// "unavailable", not a real zero
	assert.True(t, quote.High.Equal(quote.Price))
	assert.True(t, quote.Low.Equal(quote.Price))
	assert.Equal(t, int64(0), quote.Volume)
	assert.Equal(t, "2.4", quote.ChangePercent.String())
	assert.Nil(t, quote.WeeklyChangePercent)
}

func TestCryptoAdapter_UnknownSymbolIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter := NewCryptoAdapter(server.URL, unlimitedQuota(), newFakeClock())
	_, err := adapter.FetchQuote(context.Background(), "notacoin")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestCryptoAdapter_QuotaDenied(t *testing.T) {
	clock := newFakeClock()
	quota := NewQuotaTracker(clock, map[string]ProviderLimit{
		ProviderCoinGecko: {MaxCalls: 1, Window: time.Minute},
	})
	require.True(t, quota.TryAcquire(ProviderCoinGecko))

	adapter := NewCryptoAdapter("http://127.0.0.1:1", quota, clock)
	_, err := adapter.FetchQuote(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, ErrRateLimited)
}
