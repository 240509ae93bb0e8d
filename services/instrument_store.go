package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"fintrack_backend/models"
)

// InstrumentStore is the persistence collaborator of the sync engine. The
// engine reads the universe of symbols and writes back normalized fields; it
// never creates or deletes records.
type InstrumentStore interface {
	ListAll() ([]models.Instrument, error)
	FindByID(id uint) (*models.Instrument, error)
	UpdateQuote(id uint, quote *NormalizedQuote) error
}

// GormInstrumentStore implements InstrumentStore over the relational database.
type GormInstrumentStore struct {
	db *gorm.DB
}

// NewGormInstrumentStore creates a store backed by the given database.
func NewGormInstrumentStore(db *gorm.DB) *GormInstrumentStore {
	return &GormInstrumentStore{db: db}
}

// ListAll returns every tracked instrument ordered by symbol.
func (s *GormInstrumentStore) ListAll() ([]models.Instrument, error) {
	var instruments []models.Instrument
	if err := s.db.Order("symbol ASC").Find(&instruments).Error; err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	return instruments, nil
}

// FindByID returns one instrument or ErrInstrumentNotFound.
func (s *GormInstrumentStore) FindByID(id uint) (*models.Instrument, error) {
	var instrument models.Instrument
	if err := s.db.First(&instrument, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrInstrumentNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch instrument %d: %w", id, err)
	}
	return &instrument, nil
}

// UpdateQuote writes the normalized fields of a quote back onto a record.
// The weekly change column is left untouched when the provider supplied none.
func (s *GormInstrumentStore) UpdateQuote(id uint, quote *NormalizedQuote) error {
	fields := map[string]interface{}{
		"current_price": quote.Price,
		"daily_change":  quote.ChangePercent,
		"daily_high":    quote.High,
		"daily_low":     quote.Low,
		"volume":        quote.Volume,
		"last_updated":  quote.ObservedAt,
	}
	if quote.WeeklyChangePercent != nil {
		fields["weekly_change"] = *quote.WeeklyChangePercent
	}

	result := s.db.Model(&models.Instrument{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update instrument %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrInstrumentNotFound, id)
	}
	return nil
}
