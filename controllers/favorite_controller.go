package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"fintrack_backend/models"
)

// FavoriteController handles per-user favorite instruments. User identity
// comes from the auth layer in front of this service as a path parameter.
type FavoriteController struct {
	db *gorm.DB
}

// NewFavoriteController creates a new favorite controller
func NewFavoriteController(db *gorm.DB) *FavoriteController {
	return &FavoriteController{db: db}
}

// GetFavorites returns a user's favorite instruments
// GET /api/v1/users/:userID/favorites
func (fc *FavoriteController) GetFavorites(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var favorites []models.Favorite
	if err := fc.db.Where("user_id = ?", userID).
		Preload("Instrument").
		Find(&favorites).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch favorites"})
		return
	}

	instruments := make([]models.Instrument, 0, len(favorites))
	for _, fav := range favorites {
		instruments = append(instruments, fav.Instrument)
	}

	c.JSON(http.StatusOK, gin.H{"data": instruments})
}

type addFavoriteRequest struct {
	InstrumentID uint `json:"instrument_id" binding:"required"`
}

// AddFavorite marks an instrument as a favorite
// POST /api/v1/users/:userID/favorites
func (fc *FavoriteController) AddFavorite(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var req addFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var instrument models.Instrument
	if err := fc.db.First(&instrument, req.InstrumentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Instrument not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch instrument"})
		return
	}

	favorite := models.Favorite{
		UserID:       uint(userID),
		InstrumentID: req.InstrumentID,
	}
	if err := fc.db.Create(&favorite).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Instrument is already a favorite"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": favorite})
}

// RemoveFavorite removes an instrument from a user's favorites
// DELETE /api/v1/users/:userID/favorites/:instrumentID
func (fc *FavoriteController) RemoveFavorite(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	instrumentID, err := strconv.ParseUint(c.Param("instrumentID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instrument id"})
		return
	}

	result := fc.db.Where("user_id = ? AND instrument_id = ?", userID, instrumentID).
		Delete(&models.Favorite{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove favorite"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Favorite not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Favorite removed"})
}
