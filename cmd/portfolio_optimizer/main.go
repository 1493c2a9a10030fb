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
	"neuroTradeBot/internal/optimize"
	"neuroTradeBot/internal/portfolio"
	"neuroTradeBot/internal/ports"
	"neuroTradeBot/internal/signal"
	"neuroTradeBot/internal/utils"
)

func main() {
	dataDir := flag.String("data", "data", "directory holding the CSV candle cache")
	maxDrawdown := flag.Float64("max-drawdown", 0.30, "reject single strategies above this drawdown fraction")
	maxSize := flag.Int("max-size", 0, "portfolio size limit, 0 for unbounded")
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

	// 3. Build the candidate pool: candles and signals are computed once,
	// every replay during the search reuses them unchanged.
	pool := make([]optimize.Candidate, 0, len(strategies))
	for _, strat := range strategies {
		candidate, err := buildCandidate(ctx, appLogger, *dataDir, strat)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to build candidate", map[string]interface{}{"strategy": strat.ID.String()})
			log.Fatalf("FATAL: Failed to build candidate %s: %v", strat.ID.String(), err)
		}
		pool = append(pool, candidate)
		appLogger.Info(ctx, "Candidate prepared", map[string]interface{}{
			"strategy": strat.ID.String(),
			"candles":  len(candidate.Candles),
			"signals":  len(candidate.Signals),
		})
	}

	// 4. Run the greedy portfolio search
	engine, err := portfolio.NewEngine(portfolio.Config{
		StartCapital: cfg.StartCapital,
		FeeRate:      cfg.FeeRate,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to create simulation engine: %v", err)
	}

	greedy, err := optimize.NewGreedy(optimize.GreedyConfig{
		MaxDrawdownLimit: *maxDrawdown,
		MaxPortfolioSize: *maxSize,
	}, optimize.EngineObjective(engine), appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to create portfolio search: %v", err)
	}

	selection, err := greedy.Search(ctx, pool)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Portfolio search failed")
		log.Fatalf("FATAL: Portfolio search failed: %v", err)
	}

	// 5. Report
	if len(selection.Candidates) == 0 {
		fmt.Println("No strategy survived screening; nothing to select.")
		return
	}

	fmt.Printf("Selected portfolio (%d strategies, score %.4f):\n", len(selection.Candidates), selection.Evaluation.Score)
	for _, c := range selection.Candidates {
		fmt.Printf("  - %s\n", c.Strategy.ID.String())
	}
	fmt.Println()
	report := analytics.Analyze(selection.Evaluation.Result)
	fmt.Println(report.String())
}

// buildCandidate loads the candle cache for one strategy and replays its
// signal source over the full history.
func buildCandidate(ctx context.Context, appLogger ports.Logger, dataDir string, strat domain.Strategy) (optimize.Candidate, error) {
	filename := filepath.Join(dataDir, fmt.Sprintf("%s.csv", strat.ID.String()))
	candles, err := utils.ReadKlinesFromCSV(filename)
	if err != nil {
		return optimize.Candidate{}, fmt.Errorf("loading candle cache %s: %w", filename, err)
	}

	predictor, err := onnx.NewPredictor(onnx.Config{
		ModelPath:    strat.ModelPath,
		FeatureCount: onnx.FeatureCount,
	})
	if err != nil {
		return optimize.Candidate{}, fmt.Errorf("loading model: %w", err)
	}
	defer predictor.Close()

	extractor, err := onnx.NewExtractor(strat.ScalerPath)
	if err != nil {
		return optimize.Candidate{}, fmt.Errorf("loading scaler: %w", err)
	}

	generator, err := signal.NewGenerator(strat, predictor, extractor, appLogger)
	if err != nil {
		return optimize.Candidate{}, err
	}

	signals, err := generator.Generate(ctx, candles)
	if err != nil {
		return optimize.Candidate{}, fmt.Errorf("generating signals: %w", err)
	}

	return optimize.Candidate{Strategy: strat, Candles: candles, Signals: signals}, nil
}
