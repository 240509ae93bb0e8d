package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack_backend/models"
)

func newTestArchive(t *testing.T) *QuoteArchive {
	t.Helper()
	archive, err := NewQuoteArchive(filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func archiveQuoteAt(observed time.Time, price int64) NormalizedQuote {
	return NormalizedQuote{
		Price:         decimal.NewFromInt(price),
		ChangePercent: decimal.NewFromInt(1),
		High:          decimal.NewFromInt(price + 1),
		Low:           decimal.NewFromInt(price - 1),
		Volume:        500,
		ObservedAt:    observed,
	}
}

func TestQuoteArchive_HistoryNewestFirst(t *testing.T) {
	archive := newTestArchive(t)
	inst := models.Instrument{ID: 1, Symbol: "AAPL", Type: models.InstrumentTypeStock}

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	archive.OnQuoteRefreshed(inst, archiveQuoteAt(base, 100))
	archive.OnQuoteRefreshed(inst, archiveQuoteAt(base.Add(15*time.Minute), 101))
	archive.OnQuoteRefreshed(inst, archiveQuoteAt(base.Add(30*time.Minute), 102))

	history, err := archive.History(1, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "102", history[0].Price)
	assert.Equal(t, "101", history[1].Price)
	assert.Equal(t, "AAPL", history[0].Symbol)
}

func TestQuoteArchive_HistoryIsPerInstrument(t *testing.T) {
	archive := newTestArchive(t)
	now := time.Now().UTC()

	archive.OnQuoteRefreshed(models.Instrument{ID: 1, Symbol: "AAPL"}, archiveQuoteAt(now, 100))
	archive.OnQuoteRefreshed(models.Instrument{ID: 2, Symbol: "BTC"}, archiveQuoteAt(now, 60000))

	history, err := archive.History(2, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "BTC", history[0].Symbol)

	history, err = archive.History(99, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestQuoteArchive_PruneDropsOldRows(t *testing.T) {
	archive := newTestArchive(t)
	inst := models.Instrument{ID: 1, Symbol: "AAPL"}

	now := time.Now().UTC()
	archive.OnQuoteRefreshed(inst, archiveQuoteAt(now.Add(-48*time.Hour), 90))
	archive.OnQuoteRefreshed(inst, archiveQuoteAt(now, 100))

	require.NoError(t, archive.Prune(24*time.Hour))

	history, err := archive.History(1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "100", history[0].Price)
}

func TestQuoteArchive_RecentSince(t *testing.T) {
	archive := newTestArchive(t)
	inst := models.Instrument{ID: 1, Symbol: "AAPL"}

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	archive.OnQuoteRefreshed(inst, archiveQuoteAt(base, 100))
	archive.OnQuoteRefreshed(inst, archiveQuoteAt(base.Add(time.Hour), 101))

	recent, err := archive.RecentSince(base.Add(30 * time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "101", recent[0].Price)
}
