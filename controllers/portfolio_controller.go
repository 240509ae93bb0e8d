package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fintrack_backend/models"
)

// PortfolioController handles per-user portfolio positions. All money math
// runs on decimals; floats never touch the ledger.
type PortfolioController struct {
	db *gorm.DB
}

// NewPortfolioController creates a new portfolio controller
func NewPortfolioController(db *gorm.DB) *PortfolioController {
	return &PortfolioController{db: db}
}

// positionView is a position valued at the instrument's current price.
type positionView struct {
	models.PortfolioPosition
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// GetPortfolio returns a user's positions valued at current prices
// GET /api/v1/users/:userID/portfolio
func (pc *PortfolioController) GetPortfolio(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var positions []models.PortfolioPosition
	if err := pc.db.Where("user_id = ?", userID).
		Preload("Instrument").
		Find(&positions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch portfolio"})
		return
	}

	views := make([]positionView, 0, len(positions))
	totalValue := decimal.Zero
	totalInvestment := decimal.Zero
	for _, pos := range positions {
		price := pos.Instrument.CurrentPrice
		views = append(views, positionView{
			PortfolioPosition: pos,
			MarketValue:       pos.MarketValue(price),
			UnrealizedPnL:     pos.UnrealizedPnL(price),
		})
		totalValue = totalValue.Add(pos.MarketValue(price))
		totalInvestment = totalInvestment.Add(pos.TotalInvestment)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": views,
		"summary": gin.H{
			"total_value":      totalValue,
			"total_investment": totalInvestment,
			"unrealized_pnl":   totalValue.Sub(totalInvestment),
		},
	})
}

type tradeRequest struct {
	InstrumentID uint            `json:"instrument_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity" binding:"required"`
	Price        decimal.Decimal `json:"price"`
}

// Buy adds units to a position, creating it if needed. Price defaults to the
// instrument's current price when omitted.
// POST /api/v1/users/:userID/portfolio/buy
func (pc *PortfolioController) Buy(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be positive"})
		return
	}

	var instrument models.Instrument
	if err := pc.db.First(&instrument, req.InstrumentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch instrument"})
		return
	}

	price := req.Price
	if price.LessThanOrEqual(decimal.Zero) {
		price = instrument.CurrentPrice
	}
	if price.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No price available for instrument"})
		return
	}

	var position models.PortfolioPosition
	err = pc.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND instrument_id = ?", userID, req.InstrumentID).
			First(&position).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			position = models.PortfolioPosition{
				UserID:       uint(userID),
				InstrumentID: req.InstrumentID,
				Quantity:     decimal.Zero,
				AveragePrice: decimal.Zero,
			}
		} else if err != nil {
			return err
		}

		position.ApplyBuy(req.Quantity, price)
		return tx.Save(&position).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record buy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": position})
}

// Sell removes units from a position; the row is deleted when it empties.
// POST /api/v1/users/:userID/portfolio/sell
func (pc *PortfolioController) Sell(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be positive"})
		return
	}

	var insufficient bool
	var position models.PortfolioPosition
	err = pc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND instrument_id = ?", userID, req.InstrumentID).
			First(&position).Error; err != nil {
			return err
		}

		if !position.ApplySell(req.Quantity) {
			insufficient = true
			return nil
		}
		if position.Quantity.IsZero() {
			return tx.Delete(&position).Error
		}
		return tx.Save(&position).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Position not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record sell"})
		return
	}
	if insufficient {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient quantity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": position})
}
