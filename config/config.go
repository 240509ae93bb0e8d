package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	Environment string

	// Upstream market data providers
	AlphaVantageAPIKey string
	AlphaVantageURL    string
	CoinGeckoURL       string

	// Per-provider request quotas (rolling window)
	StockMaxCalls  int
	StockWindow    time.Duration
	CryptoMaxCalls int
	CryptoWindow   time.Duration

	// Refresh scheduler
	RefreshBatchSize  int
	RefreshBatchDelay time.Duration
	RefreshInterval   time.Duration

	// Quote cache TTLs: scheduled refreshes cache longer than interactive lookups
	RefreshCacheTTL time.Duration
	LookupCacheTTL  time.Duration

	// Local quote history archive (SQLite)
	ArchivePath string

	// Optional MongoDB Atlas backup of quote history
	MongoURI string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "fintrack_db"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AlphaVantageAPIKey: getEnv("ALPHA_VANTAGE_API_KEY", ""),
		AlphaVantageURL:    getEnv("ALPHA_VANTAGE_URL", "https://www.alphavantage.co/query"),
		CoinGeckoURL:       getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),

		StockMaxCalls:  getEnvInt("STOCK_MAX_CALLS_PER_WINDOW", 5),
		StockWindow:    getEnvDuration("STOCK_QUOTA_WINDOW", time.Minute),
		CryptoMaxCalls: getEnvInt("CRYPTO_MAX_CALLS_PER_WINDOW", 10),
		CryptoWindow:   getEnvDuration("CRYPTO_QUOTA_WINDOW", time.Minute),

		RefreshBatchSize:  getEnvInt("REFRESH_BATCH_SIZE", 5),
		RefreshBatchDelay: getEnvDuration("REFRESH_BATCH_DELAY", 5*time.Minute),
		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", 15*time.Minute),

		RefreshCacheTTL: getEnvDuration("REFRESH_CACHE_TTL", 15*time.Minute),
		LookupCacheTTL:  getEnvDuration("LOOKUP_CACHE_TTL", 5*time.Minute),

		ArchivePath: getEnv("QUOTE_ARCHIVE_PATH", "data/quotes.db"),
		MongoURI:    getEnv("MONGODB_URI", ""),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	// Log connection info (masked for security)
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=prefer TimeZone=UTC",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration gets a duration environment variable (e.g. "60s", "5m")
// or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
