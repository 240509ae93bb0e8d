package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"fintrack_backend/models"
	"fintrack_backend/services"
)

// MaxInstruments caps how many instruments can be tracked. Every tracked
// instrument costs upstream quota on each refresh pass.
const MaxInstruments = 25

// InstrumentController handles instrument-related requests
type InstrumentController struct {
	db        *gorm.DB
	lookup    *services.LookupService
	refresher *services.RefreshScheduler
	archive   *services.QuoteArchive
	appCtx    context.Context
}

// NewInstrumentController creates a new instrument controller. appCtx is the
// process lifetime context used for triggered refresh passes, which outlive
// the request that starts them.
func NewInstrumentController(db *gorm.DB, lookup *services.LookupService, refresher *services.RefreshScheduler, archive *services.QuoteArchive, appCtx context.Context) *InstrumentController {
	return &InstrumentController{
		db:        db,
		lookup:    lookup,
		refresher: refresher,
		archive:   archive,
		appCtx:    appCtx,
	}
}

// GetInstruments returns all instruments with pagination
// GET /api/v1/instruments
func (ic *InstrumentController) GetInstruments(c *gin.Context) {
	instrumentType := c.Query("type")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	offset := (page - 1) * limit

	query := ic.db.Model(&models.Instrument{})
	if instrumentType != "" {
		query = query.Where("type = ?", instrumentType)
	}

	var total int64
	query.Count(&total)

	var instruments []models.Instrument
	if err := query.Order("symbol ASC").Limit(limit).Offset(offset).Find(&instruments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch instruments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": instruments,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// SearchInstruments searches instruments by symbol or name
// GET /api/v1/instruments/search
func (ic *InstrumentController) SearchInstruments(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing query parameter q"})
		return
	}
	instrumentType := c.Query("type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	pattern := "%" + q + "%"
	query := ic.db.Where("symbol ILIKE ? OR name ILIKE ?", pattern, pattern)
	if instrumentType != "" {
		query = query.Where("type = ?", instrumentType)
	}

	var instruments []models.Instrument
	if err := query.Order("symbol ASC").Limit(limit).Find(&instruments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search instruments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": instruments})
}

// GetTopInstruments returns instruments ordered by volume
// GET /api/v1/instruments/top
func (ic *InstrumentController) GetTopInstruments(c *gin.Context) {
	instrumentType := c.Query("type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := ic.db.Model(&models.Instrument{})
	if instrumentType != "" {
		query = query.Where("type = ?", instrumentType)
	}

	var instruments []models.Instrument
	if err := query.Order("volume DESC").Limit(limit).Find(&instruments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch top instruments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": instruments})
}

// GetInstrument returns a single instrument by ID
// GET /api/v1/instruments/:id
func (ic *InstrumentController) GetInstrument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instrument id"})
		return
	}

	var instrument models.Instrument
	if err := ic.db.First(&instrument, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch instrument"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": instrument})
}

// GetInstrumentDetails returns an instrument merged with its freshest quote.
// Served from the quote cache when fresh; otherwise one gated upstream fetch
// with fallback to the last persisted fields.
// GET /api/v1/instruments/:id/details
func (ic *InstrumentController) GetInstrumentDetails(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instrument id"})
		return
	}

	details, err := ic.lookup.GetDetails(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrInstrumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch instrument details"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": details})
}

// GetInstrumentHistory returns archived quote snapshots for an instrument
// GET /api/v1/instruments/:id/history
func (ic *InstrumentController) GetInstrumentHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instrument id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if ic.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Quote history unavailable"})
		return
	}

	var instrument models.Instrument
	if err := ic.db.First(&instrument, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
		return
	}

	snapshots, err := ic.archive.History(uint(id), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       snapshots,
		"instrument": instrument,
	})
}

type createInstrumentRequest struct {
	Symbol string                `json:"symbol" binding:"required"`
	Name   string                `json:"name" binding:"required"`
	Type   models.InstrumentType `json:"type" binding:"required"`
}

// CreateInstrument adds a new tracked instrument
// POST /api/v1/instruments
func (ic *InstrumentController) CreateInstrument(c *gin.Context) {
	var req createInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type != models.InstrumentTypeStock && req.Type != models.InstrumentTypeCrypto {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Type must be stock or crypto"})
		return
	}

	var count int64
	ic.db.Model(&models.Instrument{}).Count(&count)
	if count >= MaxInstruments {
		c.JSON(http.StatusConflict, gin.H{"error": "Instrument limit reached"})
		return
	}

	instrument := models.Instrument{
		Symbol: req.Symbol,
		Name:   req.Name,
		Type:   req.Type,
	}
	if err := ic.db.Create(&instrument).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Instrument already exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": instrument})
}

type updateInstrumentRequest struct {
	Name string `json:"name" binding:"required"`
}

// UpdateInstrument renames an instrument. Symbol and type are immutable.
// PUT /api/v1/instruments/:id
func (ic *InstrumentController) UpdateInstrument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instrument id"})
		return
	}

	var req updateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := ic.db.Model(&models.Instrument{}).Where("id = ?", id).Update("name", req.Name)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update instrument"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Instrument updated"})
}

// DeleteInstrument removes an instrument and its favorites/positions
// DELETE /api/v1/instruments/:id
func (ic *InstrumentController) DeleteInstrument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instrument id"})
		return
	}

	err = ic.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("instrument_id = ?", id).Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
		if err := tx.Where("instrument_id = ?", id).Delete(&models.PortfolioPosition{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Instrument{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete instrument"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Instrument deleted"})
}

// UpdateAllInstruments triggers an out-of-cadence refresh pass
// POST /api/v1/instruments/update-all
func (ic *InstrumentController) UpdateAllInstruments(c *gin.Context) {
	if !ic.refresher.TryRunPass(ic.appCtx) {
		c.JSON(http.StatusConflict, gin.H{"error": "A refresh pass is already running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Refresh pass started"})
}

// GetRefreshStatus reports the state of the refresh engine
// GET /api/v1/instruments/refresh-status
func (ic *InstrumentController) GetRefreshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":   ic.refresher.IsRunning(),
		"last_pass": ic.refresher.LastResult(),
	})
}
