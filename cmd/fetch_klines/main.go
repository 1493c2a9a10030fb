package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"neuroTradeBot/config"
	"neuroTradeBot/internal/adapters/binanceclient"
	"neuroTradeBot/internal/adapters/logger"
	"neuroTradeBot/internal/utils"
)

func main() {
	months := flag.Int("months", 6, "how many months of history to fetch")
	outDir := flag.String("out", "data", "directory for the CSV candle cache")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Load Strategy Definitions (they name the symbols and timeframes)
	strategies, err := config.LoadStrategies(cfg.StrategiesPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load strategy definitions")
		log.Fatalf("FATAL: Failed to load strategy definitions: %v", err)
	}

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create output directory: %v", err)
	}

	end := time.Now()
	start := end.AddDate(0, -*months, 0)

	for _, strat := range strategies {
		id := strat.ID
		fmt.Printf("Fetching klines for %s from %s to %s...\n", id.String(), start.Format("2006-01-02"), end.Format("2006-01-02"))
		klines, err := binanceClient.GetKlinesRange(ctx, id.Symbol, id.Timeframe, start, end)
		if err != nil {
			appLogger.Error(ctx, err, "Error fetching klines", map[string]interface{}{"strategy": id.String()})
			log.Fatalf("Error fetching klines for %s: %v", id.String(), err)
		}
		appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"strategy": id.String(), "count": len(klines)})

		filename := filepath.Join(*outDir, fmt.Sprintf("%s.csv", id.String()))
		if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV", map[string]interface{}{"filename": filename})
			log.Fatalf("Error writing CSV %s: %v", filename, err)
		}
		appLogger.Info(ctx, "Saved candle cache", map[string]interface{}{"filename": filename})
	}
}
