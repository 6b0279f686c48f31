// Package config loads environment-driven settings for the backtest
// service, grounded on the teacher's pkg/config/config.go getEnv/bool
// helpers.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds settings for the HTTP surface, store, and default
// execution-model parameters.
type Config struct {
	Port string

	// Store
	DBPath string

	// Auth
	JWTSecret string
	APIKey    string

	// Rate limiting (requests per second, burst) for run submission.
	RateLimitRPS   float64
	RateLimitBurst int

	// Default execution-model parameters (spec.md §4.2/§9). They are
	// loaded here but nothing reads them: a submitted run takes fees,
	// fixed fees and slippage from its request (zero when omitted) and
	// sizes its order/log buffers to its bar count.
	DefaultFees            float64
	DefaultFixedFees       float64
	DefaultSlippage        float64
	DefaultRelTol          float64
	DefaultAbsTol          float64
	DefaultMaxOrdersPerBar int

	// Strategy presets
	StrategyConfigPath string
}

// Load reads environment variables (optionally via a .env file) into a
// Config. Errors loading .env are ignored so the service still starts
// when no .env file is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/backtest.db")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		DBPath:                 dbPath,
		JWTSecret:              getEnv("JWT_SECRET", "dev-secret"),
		APIKey:                 getEnv("API_KEY", "dev-api-key"),
		RateLimitRPS:           getEnvFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:         getEnvInt("RATE_LIMIT_BURST", 5),
		DefaultFees:            getEnvFloat("DEFAULT_FEES", 0),
		DefaultFixedFees:       getEnvFloat("DEFAULT_FIXED_FEES", 0),
		DefaultSlippage:        getEnvFloat("DEFAULT_SLIPPAGE", 0),
		DefaultRelTol:          getEnvFloat("DEFAULT_REL_TOL", 1e-9),
		DefaultAbsTol:          getEnvFloat("DEFAULT_ABS_TOL", 1e-12),
		DefaultMaxOrdersPerBar: getEnvInt("DEFAULT_MAX_ORDERS_PER_BAR", 1),
		StrategyConfigPath:     getEnv("STRATEGY_CONFIG_PATH", "strategies.yaml"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
