package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"neuroTradeBot/config"
	"neuroTradeBot/internal/adapters/logger"
	"neuroTradeBot/internal/adapters/onnx"
	"neuroTradeBot/internal/analytics"
	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/portfolio"
	"neuroTradeBot/internal/ports"
	"neuroTradeBot/internal/signal"
	"neuroTradeBot/internal/utils"
)

func main() {
	dataDir := flag.String("data", "data", "directory holding the CSV candle cache")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	// 2. Load Strategy Definitions
	strategies, err := config.LoadStrategies(cfg.StrategiesPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load strategy definitions")
		log.Fatalf("FATAL: Failed to load strategy definitions: %v", err)
	}

	// 3. Prepare per-strategy inputs: cached candles and model-driven signals
	input := portfolio.Input{Candles: make(map[domain.StrategyID][]*domain.Kline, len(strategies))}
	for _, strat := range strategies {
		candles, signals, err := prepareStrategy(ctx, appLogger, *dataDir, strat)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to prepare strategy", map[string]interface{}{"strategy": strat.ID.String()})
			log.Fatalf("FATAL: Failed to prepare strategy %s: %v", strat.ID.String(), err)
		}
		input.Candles[strat.ID] = candles
		input.Signals = append(input.Signals, signals...)
		appLogger.Info(ctx, "Strategy prepared", map[string]interface{}{
			"strategy": strat.ID.String(),
			"candles":  len(candles),
			"signals":  len(signals),
		})
	}

	// 4. Replay the combined portfolio
	engine, err := portfolio.NewEngine(portfolio.Config{
		StartCapital: cfg.StartCapital,
		FeeRate:      cfg.FeeRate,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to create simulation engine: %v", err)
	}

	result, err := engine.Run(ctx, input)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Simulation failed")
		log.Fatalf("FATAL: Simulation failed: %v", err)
	}

	// 5. Report
	report := analytics.Analyze(result)
	fmt.Println(report.String())
}

// prepareStrategy loads the candle cache for one strategy and replays its
// signal source over the full history.
func prepareStrategy(ctx context.Context, appLogger ports.Logger, dataDir string, strat domain.Strategy) ([]*domain.Kline, []domain.Signal, error) {
	filename := filepath.Join(dataDir, fmt.Sprintf("%s.csv", strat.ID.String()))
	candles, err := utils.ReadKlinesFromCSV(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("loading candle cache %s: %w", filename, err)
	}

	predictor, err := onnx.NewPredictor(onnx.Config{
		ModelPath:    strat.ModelPath,
		FeatureCount: onnx.FeatureCount,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading model: %w", err)
	}
	defer predictor.Close()

	extractor, err := onnx.NewExtractor(strat.ScalerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading scaler: %w", err)
	}

	generator, err := signal.NewGenerator(strat, predictor, extractor, appLogger)
	if err != nil {
		return nil, nil, err
	}

	signals, err := generator.Generate(ctx, candles)
	if err != nil {
		return nil, nil, fmt.Errorf("generating signals: %w", err)
	}
	return candles, signals, nil
}
