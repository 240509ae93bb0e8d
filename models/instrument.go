package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstrumentType distinguishes which upstream provider serves an instrument
type InstrumentType string

const (
	InstrumentTypeStock  InstrumentType = "stock"
	InstrumentTypeCrypto InstrumentType = "crypto"
)

// Instrument represents a tracked financial instrument (stock or crypto).
// Symbol is unique and immutable once created; Type decides which provider
// adapter refreshes the record and never changes.
type Instrument struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Symbol       string          `gorm:"uniqueIndex;not null" json:"symbol"`
	Name         string          `gorm:"not null" json:"name"`
	Type         InstrumentType  `gorm:"type:varchar(10);not null;index" json:"type"`
	CurrentPrice decimal.Decimal `gorm:"type:decimal(18,4)" json:"current_price"`
	DailyChange  decimal.Decimal `gorm:"type:decimal(10,4)" json:"daily_change"`
	WeeklyChange decimal.Decimal `gorm:"type:decimal(10,4)" json:"weekly_change"`
	DailyHigh    decimal.Decimal `gorm:"type:decimal(18,4)" json:"daily_high"`
	DailyLow     decimal.Decimal `gorm:"type:decimal(18,4)" json:"daily_low"`
	Volume       int64           `json:"volume"`
	LastUpdated  *time.Time      `json:"last_updated"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Favorite marks an instrument as a favorite for a user. User identity is
// issued by the auth layer in front of this service.
type Favorite struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"uniqueIndex:idx_user_instrument_fav;not null" json:"user_id"`
	InstrumentID uint       `gorm:"uniqueIndex:idx_user_instrument_fav;not null" json:"instrument_id"`
	Instrument   Instrument `gorm:"foreignKey:InstrumentID" json:"instrument,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PortfolioPosition is one user's holding of one instrument. AveragePrice and
// TotalInvestment are recomputed on every buy; a sell that empties the
// position deletes the row.
type PortfolioPosition struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"uniqueIndex:idx_user_instrument_pos;not null" json:"user_id"`
	InstrumentID    uint            `gorm:"uniqueIndex:idx_user_instrument_pos;not null" json:"instrument_id"`
	Instrument      Instrument      `gorm:"foreignKey:InstrumentID" json:"instrument,omitempty"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,8);not null" json:"quantity"`
	AveragePrice    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"average_price"`
	TotalInvestment decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_investment"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ApplyBuy folds a buy of quantity units at price into the position.
func (p *PortfolioPosition) ApplyBuy(quantity, price decimal.Decimal) {
	cost := quantity.Mul(price)
	p.Quantity = p.Quantity.Add(quantity)
	p.TotalInvestment = p.TotalInvestment.Add(cost)
	if !p.Quantity.IsZero() {
		p.AveragePrice = p.TotalInvestment.DivRound(p.Quantity, 4)
	}
}

// ApplySell removes quantity units from the position at its average price.
// Returns false when the position holds fewer units than requested.
func (p *PortfolioPosition) ApplySell(quantity decimal.Decimal) bool {
	if quantity.GreaterThan(p.Quantity) {
		return false
	}
	p.Quantity = p.Quantity.Sub(quantity)
	p.TotalInvestment = p.TotalInvestment.Sub(quantity.Mul(p.AveragePrice))
	if p.Quantity.IsZero() {
		p.TotalInvestment = decimal.Zero
	}
	return true
}

// MarketValue values the position at the given current price.
func (p *PortfolioPosition) MarketValue(currentPrice decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(currentPrice)
}

// UnrealizedPnL is market value minus total investment.
func (p *PortfolioPosition) UnrealizedPnL(currentPrice decimal.Decimal) decimal.Decimal {
	return p.MarketValue(currentPrice).Sub(p.TotalInvestment)
}

// MigrateInstrumentModels runs database migrations for instrument-related models
func MigrateInstrumentModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Instrument{},
		&Favorite{},
		&PortfolioPosition{},
	)
}
