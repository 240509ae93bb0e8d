package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioPosition_ApplyBuyAveragesPrice(t *testing.T) {
	pos := PortfolioPosition{}

	pos.ApplyBuy(decimal.NewFromInt(10), decimal.NewFromInt(100))
	assert.Equal(t, "10", pos.Quantity.String())
	assert.Equal(t, "100", pos.AveragePrice.String())
	assert.Equal(t, "1000", pos.TotalInvestment.String())

	// Buying more at a higher price shifts the average
	pos.ApplyBuy(decimal.NewFromInt(10), decimal.NewFromInt(200))
	assert.Equal(t, "20", pos.Quantity.String())
	assert.Equal(t, "150", pos.AveragePrice.String())
	assert.Equal(t, "3000", pos.TotalInvestment.String())
}

func TestPortfolioPosition_ApplySell(t *testing.T) {
	pos := PortfolioPosition{}
	pos.ApplyBuy(decimal.NewFromInt(10), decimal.NewFromInt(100))

	require.True(t, pos.ApplySell(decimal.NewFromInt(4)))
	assert.Equal(t, "6", pos.Quantity.String())
	assert.Equal(t, "600", pos.TotalInvestment.String())
	// Average price of the remainder is unchanged by a sell
	assert.Equal(t, "100", pos.AveragePrice.String())
}

func TestPortfolioPosition_SellMoreThanHeldIsRejected(t *testing.T) {
	pos := PortfolioPosition{}
	pos.ApplyBuy(decimal.NewFromInt(5), decimal.NewFromInt(10))

	assert.False(t, pos.ApplySell(decimal.NewFromInt(6)))
	// Rejected sells leave the position untouched
	assert.Equal(t, "5", pos.Quantity.String())
	assert.Equal(t, "50", pos.TotalInvestment.String())
}

func TestPortfolioPosition_SellToZeroClearsInvestment(t *testing.T) {
	pos := PortfolioPosition{}
	pos.ApplyBuy(decimal.RequireFromString("0.5"), decimal.NewFromInt(60000))

	require.True(t, pos.ApplySell(decimal.RequireFromString("0.5")))
	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.TotalInvestment.IsZero())
}

func TestPortfolioPosition_Valuation(t *testing.T) {
	pos := PortfolioPosition{}
	pos.ApplyBuy(decimal.NewFromInt(10), decimal.NewFromInt(100))

	current := decimal.NewFromInt(120)
	assert.Equal(t, "1200", pos.MarketValue(current).String())
	assert.Equal(t, "200", pos.UnrealizedPnL(current).String())

	// Loss positions go negative
	assert.Equal(t, "-200", pos.UnrealizedPnL(decimal.NewFromInt(80)).String())
}

func TestPortfolioPosition_FractionalAverageRounds(t *testing.T) {
	pos := PortfolioPosition{}
	pos.ApplyBuy(decimal.NewFromInt(3), decimal.NewFromInt(100))
	pos.ApplyBuy(decimal.NewFromInt(4), decimal.NewFromInt(150))

	// 900 / 7 rounded to 4 places
	assert.Equal(t, "128.5714", pos.AveragePrice.String())
}
