// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Market data provider
	YahooBaseURL        string        // Base URL for the Yahoo chart API
	ExchangeRateBaseURL string        // Base URL for exchangerate-api.com
	QuoteCacheTTL       time.Duration // TTL for cached current prices
	MaxRetries          int           // Quote fetch attempts before giving up
	RetryDelay          time.Duration // Backoff unit, multiplied by attempt number

	// Dividend withholding policy. Applied only to USD-denominated
	// investments during dividend synchronization.
	WithholdingTaxRate float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("INVESTRACK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("PORT", 8080),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		YahooBaseURL:        getEnv("YAHOO_BASE_URL", "https://query2.finance.yahoo.com"),
		ExchangeRateBaseURL: getEnv("EXCHANGE_RATE_BASE_URL", "https://api.exchangerate-api.com/v4/latest"),
		QuoteCacheTTL:       time.Duration(getEnvAsInt("QUOTE_CACHE_TTL_MINUTES", 15)) * time.Minute,
		MaxRetries:          getEnvAsInt("QUOTE_MAX_RETRIES", 3),
		RetryDelay:          time.Duration(getEnvAsInt("QUOTE_RETRY_DELAY_MS", 1000)) * time.Millisecond,
		WithholdingTaxRate:  getEnvAsFloat("WITHHOLDING_TAX_RATE", 0.30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("QUOTE_MAX_RETRIES must be at least 1")
	}
	if c.WithholdingTaxRate < 0 || c.WithholdingTaxRate >= 1 {
		return fmt.Errorf("WITHHOLDING_TAX_RATE must be in [0, 1)")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
