// Command reset_breaker clears a tripped circuit breaker after the operator
// has reviewed the account. The peak equity rebases to the current equity so
// the drawdown measurement restarts from today, not from the old high.
package main

import (
	"context"
	"log"

	"neuroTradeBot/config"
	"neuroTradeBot/internal/adapters/logger"
	"neuroTradeBot/internal/adapters/statefile"
	"neuroTradeBot/internal/risk"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	stateStore, err := statefile.NewStore(cfg.StateDir)
	if err != nil {
		log.Fatalf("FATAL: Failed to open state store: %v", err)
	}

	governor, err := risk.NewGovernor(risk.Thresholds{
		ReduceDrawdown: cfg.ReduceDrawdown,
		HaltDrawdown:   cfg.HaltDrawdown,
		DailyLossLimit: cfg.DailyLossLimit,
	}, stateStore, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize circuit breaker: %v", err)
	}

	if err := governor.Reset(ctx); err != nil {
		appLogger.Error(ctx, err, "Failed to reset circuit breaker")
		log.Fatalf("FATAL: Failed to reset circuit breaker: %v", err)
	}
	appLogger.Info(ctx, "Circuit breaker reset")
}
