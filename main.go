package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fintrack_backend/config"
	"fintrack_backend/models"
	"fintrack_backend/routes"
	"fintrack_backend/scheduler"
	"fintrack_backend/services"
)

// dbInitialized tracks whether the database has been successfully
// initialized, so the /ready endpoint can report readiness while startup
// continues in the background
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  FinTrack Backend API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints first; database and engine are
	// initialized in the background
	setupHealthEndpoints(router)

	// Process lifetime context; cancellation stops in-flight refresh passes
	appCtx, cancelApp := context.WithCancel(context.Background())

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server immediately so orchestrators see the port open
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database, engine and routes in background
	var jobScheduler *scheduler.Scheduler
	var archive *services.QuoteArchive
	var mongoSync *services.MongoQuoteSync
	var stream *services.QuoteStream
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		log.Println("Running database migrations...")
		if err := models.MigrateInstrumentModels(db); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		// Build the market data sync engine
		quota := services.NewQuotaTracker(services.SystemClock, map[string]services.ProviderLimit{
			services.ProviderAlphaVantage: {MaxCalls: cfg.StockMaxCalls, Window: cfg.StockWindow},
			services.ProviderCoinGecko:    {MaxCalls: cfg.CryptoMaxCalls, Window: cfg.CryptoWindow},
		})
		adapters := services.AdapterSet{
			models.InstrumentTypeStock:  services.NewStockAdapter(cfg.AlphaVantageURL, cfg.AlphaVantageAPIKey, quota, services.SystemClock),
			models.InstrumentTypeCrypto: services.NewCryptoAdapter(cfg.CoinGeckoURL, quota, services.SystemClock),
		}
		cache := services.NewQuoteCache(services.SystemClock)
		store := services.NewGormInstrumentStore(db)

		archive, err = services.NewQuoteArchive(cfg.ArchivePath)
		if err != nil {
			log.Printf("ERROR: Quote archive unavailable: %v", err)
		}
		mongoSync, err = services.NewMongoQuoteSync(cfg.MongoURI)
		if err != nil {
			log.Printf("MongoDB quote sync unavailable: %v", err)
		}
		stream = services.NewQuoteStream()

		sinks := []services.QuoteSink{stream}
		if archive != nil {
			sinks = append(sinks, archive)
		}
		if mongoSync != nil {
			sinks = append(sinks, mongoSync)
		}

		refresher := services.NewRefreshScheduler(store, adapters, cache, services.RefreshSchedulerConfig{
			BatchSize:  cfg.RefreshBatchSize,
			BatchDelay: cfg.RefreshBatchDelay,
			CacheTTL:   cfg.RefreshCacheTTL,
		}, sinks...)
		lookup := services.NewLookupService(store, adapters, cache, cfg.LookupCacheTTL)

		// Mark database as ready
		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		// Setup all API routes
		routes.SetupRoutes(router, db, &routes.Engine{
			Lookup:    lookup,
			Refresher: refresher,
			Archive:   archive,
			Stream:    stream,
		}, appCtx)

		// Start background scheduler
		jobScheduler = scheduler.NewScheduler(appCtx, refresher, archive, mongoSync, cfg.RefreshInterval)
		jobScheduler.Start()

		log.Println("Application fully initialized with database")
	}()

	gracefulShutdown(server, cancelApp, &jobScheduler, &archive, &mongoSync, &stream)
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "FinTrack Backend API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown stops the interval jobs, lets in-flight work drain and
// closes every store.
func gracefulShutdown(server *http.Server, cancelApp context.CancelFunc, jobScheduler **scheduler.Scheduler, archive **services.QuoteArchive, mongoSync **services.MongoQuoteSync, stream **services.QuoteStream) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop the cadence first, then cancel in-flight passes
	if *jobScheduler != nil {
		(*jobScheduler).Stop()
	}
	cancelApp()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if *stream != nil {
		(*stream).Shutdown()
	}
	if *archive != nil {
		if err := (*archive).Close(); err != nil {
			log.Printf("Failed to close quote archive: %v", err)
		}
	}
	if *mongoSync != nil {
		if err := (*mongoSync).Close(); err != nil {
			log.Printf("Failed to close MongoDB client: %v", err)
		}
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
