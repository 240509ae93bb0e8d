package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"fintrack_backend/controllers"
	"fintrack_backend/middleware"
	"fintrack_backend/services"
)

// Engine bundles the sync engine pieces the routing layer calls into.
type Engine struct {
	Lookup    *services.LookupService
	Refresher *services.RefreshScheduler
	Archive   *services.QuoteArchive
	Stream    *services.QuoteStream
}

// SetupRoutes sets up all API routes. appCtx is the process lifetime context
// handed to background passes triggered from requests.
func SetupRoutes(router *gin.Engine, db *gorm.DB, engine *Engine, appCtx context.Context) {
	// Initialize controllers
	instrumentController := controllers.NewInstrumentController(db, engine.Lookup, engine.Refresher, engine.Archive, appCtx)
	favoriteController := controllers.NewFavoriteController(db)
	portfolioController := controllers.NewPortfolioController(db)

	// Triggered refresh passes are expensive; cap them per IP on top of the
	// provider quota gate
	refreshLimiter := middleware.NewRateLimiter(2, 10*time.Minute)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Instrument routes
		instruments := api.Group("/instruments")
		{
			instruments.GET("", instrumentController.GetInstruments)
			instruments.GET("/search", instrumentController.SearchInstruments)
			instruments.GET("/top", instrumentController.GetTopInstruments)
			instruments.GET("/refresh-status", instrumentController.GetRefreshStatus)
			instruments.GET("/:id", instrumentController.GetInstrument)
			instruments.GET("/:id/details", instrumentController.GetInstrumentDetails)
			instruments.GET("/:id/history", instrumentController.GetInstrumentHistory)
			instruments.POST("", instrumentController.CreateInstrument)
			instruments.PUT("/:id", instrumentController.UpdateInstrument)
			instruments.DELETE("/:id", instrumentController.DeleteInstrument)
			instruments.POST("/update-all", refreshLimiter.Middleware(), instrumentController.UpdateAllInstruments)
		}

		// Per-user routes
		users := api.Group("/users/:userID")
		{
			users.GET("/favorites", favoriteController.GetFavorites)
			users.POST("/favorites", favoriteController.AddFavorite)
			users.DELETE("/favorites/:instrumentID", favoriteController.RemoveFavorite)

			users.GET("/portfolio", portfolioController.GetPortfolio)
			users.POST("/portfolio/buy", portfolioController.Buy)
			users.POST("/portfolio/sell", portfolioController.Sell)
		}
	}

	// Realtime quote stream
	router.GET("/ws/quotes", engine.Stream.HandleConnection)
}
