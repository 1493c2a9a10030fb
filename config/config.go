// Package config loads application configuration from the environment and
// strategy definitions from YAML. All percentage knobs become fractions here;
// nothing past this boundary ever sees a percent.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"neuroTradeBot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Accounting
	QuoteAsset   string  // Margin asset, e.g. "USDT"
	StartCapital float64 // Simulation starting capital
	FeeRate      float64 // Taker fee per side, as a fraction

	// Circuit breaker thresholds, as fractions
	ReduceDrawdown float64
	HaltDrawdown   float64
	DailyLossLimit float64

	// Paths
	DBPath         string
	StateDir       string
	StrategiesPath string // YAML strategy definitions

	// Live loop
	PollInterval        time.Duration
	MinAvailableBalance float64

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}

	cfg.StartCapital, err = getEnvAsFloatRequired("START_CAPITAL", 1000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid START_CAPITAL: %v", err))
	} else if cfg.StartCapital <= 0 {
		errs = append(errs, "START_CAPITAL must be positive")
	}

	// FEE_PCT is human-readable percent; stored as a fraction.
	feePct, err := getEnvAsFloatRequired("FEE_PCT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_PCT: %v", err))
	} else if feePct < 0 || feePct >= 100 {
		errs = append(errs, "FEE_PCT must be in [0, 100)")
	}
	cfg.FeeRate = feePct / 100

	reducePct, err := getEnvAsFloatRequired("BREAKER_REDUCE_DRAWDOWN_PCT", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BREAKER_REDUCE_DRAWDOWN_PCT: %v", err))
	}
	cfg.ReduceDrawdown = reducePct / 100

	haltPct, err := getEnvAsFloatRequired("BREAKER_HALT_DRAWDOWN_PCT", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BREAKER_HALT_DRAWDOWN_PCT: %v", err))
	}
	cfg.HaltDrawdown = haltPct / 100

	dailyPct, err := getEnvAsFloatRequired("BREAKER_DAILY_LOSS_PCT", 3.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BREAKER_DAILY_LOSS_PCT: %v", err))
	}
	cfg.DailyLossLimit = dailyPct / 100

	if cfg.ReduceDrawdown <= 0 || cfg.HaltDrawdown <= cfg.ReduceDrawdown {
		errs = append(errs, "BREAKER_HALT_DRAWDOWN_PCT must exceed BREAKER_REDUCE_DRAWDOWN_PCT, both positive")
	}
	if cfg.DailyLossLimit <= 0 {
		errs = append(errs, "BREAKER_DAILY_LOSS_PCT must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/neurotradebot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	cfg.StateDir = getEnv("STATE_DIR", "./data/state")
	if cfg.StateDir == "" {
		errs = append(errs, "STATE_DIR must be set")
	}
	cfg.StrategiesPath = getEnv("STRATEGIES_PATH", "./config/strategies.yaml")
	if cfg.StrategiesPath == "" {
		errs = append(errs, "STRATEGIES_PATH must be set")
	}

	pollSeconds := getEnvAsInt("POLL_INTERVAL_SECONDS", 30)
	if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	cfg.MinAvailableBalance, err = getEnvAsFloatRequired("MIN_AVAILABLE_BALANCE", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_AVAILABLE_BALANCE: %v", err))
	} else if cfg.MinAvailableBalance < 0 {
		errs = append(errs, "MIN_AVAILABLE_BALANCE cannot be negative")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
