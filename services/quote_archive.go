package services

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fintrack_backend/models"
)

// QuoteSnapshot is one archived quote observation.
type QuoteSnapshot struct {
	ID            int64     `json:"id"`
	InstrumentID  uint      `json:"instrument_id"`
	Symbol        string    `json:"symbol"`
	Price         string    `json:"price"`
	ChangePercent string    `json:"change_percent"`
	High          string    `json:"high"`
	Low           string    `json:"low"`
	Volume        int64     `json:"volume"`
	ObservedAt    time.Time `json:"observed_at"`
}

// QuoteArchive keeps a local SQLite history of every quote the refresh
// scheduler writes, serving the per-instrument history endpoint. It
// implements QuoteSink.
type QuoteArchive struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewQuoteArchive opens (or creates) the archive database at path.
func NewQuoteArchive(path string) (*QuoteArchive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open quote archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping quote archive: %w", err)
	}

	a := &QuoteArchive{db: db}
	if err := a.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create archive tables: %w", err)
	}

	log.Printf("Quote archive initialized at %s", path)
	return a, nil
}

// Close closes the archive database.
func (a *QuoteArchive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *QuoteArchive) createTables() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	schema := `
		CREATE TABLE IF NOT EXISTS quote_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id INTEGER NOT NULL,
			symbol VARCHAR NOT NULL,
			price VARCHAR NOT NULL,
			change_percent VARCHAR NOT NULL,
			high VARCHAR NOT NULL,
			low VARCHAR NOT NULL,
			volume INTEGER NOT NULL,
			observed_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_instrument
			ON quote_history(instrument_id, observed_at);`

	_, err := a.db.Exec(schema)
	return err
}

// OnQuoteRefreshed appends one snapshot row. Archive failures are logged and
// swallowed so they can never fail a refresh pass.
func (a *QuoteArchive) OnQuoteRefreshed(inst models.Instrument, quote NormalizedQuote) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(`
		INSERT INTO quote_history
			(instrument_id, symbol, price, change_percent, high, low, volume, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.Symbol,
		quote.Price.String(), quote.ChangePercent.String(),
		quote.High.String(), quote.Low.String(),
		quote.Volume, quote.ObservedAt,
	)
	if err != nil {
		log.Printf("Failed to archive quote for %s: %v", inst.Symbol, err)
	}
}

// History returns the most recent snapshots for an instrument, newest first.
func (a *QuoteArchive) History(instrumentID uint, limit int) ([]QuoteSnapshot, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.Query(`
		SELECT id, instrument_id, symbol, price, change_percent, high, low, volume, observed_at
		FROM quote_history
		WHERE instrument_id = ?
		ORDER BY observed_at DESC
		LIMIT ?`, instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote history: %w", err)
	}
	defer rows.Close()

	var snapshots []QuoteSnapshot
	for rows.Next() {
		var s QuoteSnapshot
		if err := rows.Scan(&s.ID, &s.InstrumentID, &s.Symbol, &s.Price,
			&s.ChangePercent, &s.High, &s.Low, &s.Volume, &s.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// RecentSince returns all snapshots observed after the given time.
func (a *QuoteArchive) RecentSince(since time.Time) ([]QuoteSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.Query(`
		SELECT id, instrument_id, symbol, price, change_percent, high, low, volume, observed_at
		FROM quote_history
		WHERE observed_at > ?
		ORDER BY observed_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []QuoteSnapshot
	for rows.Next() {
		var s QuoteSnapshot
		if err := rows.Scan(&s.ID, &s.InstrumentID, &s.Symbol, &s.Price,
			&s.ChangePercent, &s.High, &s.Low, &s.Volume, &s.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Prune deletes snapshots older than the retention period.
func (a *QuoteArchive) Prune(retention time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	result, err := a.db.Exec(`DELETE FROM quote_history WHERE observed_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune quote history: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Printf("Pruned %d archived quotes older than %s", n, cutoff.Format(time.RFC3339))
	}
	return nil
}
