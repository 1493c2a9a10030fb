package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"neuroTradeBot/config"
	"neuroTradeBot/internal/adapters/binanceclient"
	"neuroTradeBot/internal/adapters/logger"
	"neuroTradeBot/internal/adapters/notify"
	"neuroTradeBot/internal/adapters/onnx"
	"neuroTradeBot/internal/adapters/sqlite"
	"neuroTradeBot/internal/adapters/statefile"
	"neuroTradeBot/internal/app"
	"neuroTradeBot/internal/risk"
	"neuroTradeBot/internal/signal"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Load Strategy Definitions
	strategies, err := config.LoadStrategies(cfg.StrategiesPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load strategy definitions")
		log.Fatalf("FATAL: Failed to load strategy definitions: %v", err)
	}
	appLogger.Info(ctx, "Strategy definitions loaded", map[string]interface{}{"count": len(strategies)})

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 5. Initialize State Store (trade locks, circuit breaker)
	stateStore, err := statefile.NewStore(cfg.StateDir)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize state store")
		log.Fatalf("FATAL: Failed to initialize state store: %v", err)
	}
	appLogger.Info(ctx, "State store initialized", map[string]interface{}{"dir": cfg.StateDir})

	// 6. Initialize Exchange Client (Binance Adapter)
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
	appLogger.Info(ctx, "Binance client initialized")

	// 7. Initialize Circuit Breaker
	governor, err := risk.NewGovernor(risk.Thresholds{
		ReduceDrawdown: cfg.ReduceDrawdown,
		HaltDrawdown:   cfg.HaltDrawdown,
		DailyLossLimit: cfg.DailyLossLimit,
	}, stateStore, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize circuit breaker")
		log.Fatalf("FATAL: Failed to initialize circuit breaker: %v", err)
	}

	// 8. Build one runtime per strategy: model, scaler, signal generator
	notifier, err := notify.NewLogNotifier(appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize notifier: %v", err)
	}
	runtimes := make([]*app.StrategyRuntime, 0, len(strategies))
	for _, strat := range strategies {
		predictor, err := onnx.NewPredictor(onnx.Config{
			ModelPath:    strat.ModelPath,
			FeatureCount: onnx.FeatureCount,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to load model", map[string]interface{}{"strategy": strat.ID.String()})
			log.Fatalf("FATAL: Failed to load model for %s: %v", strat.ID.String(), err)
		}
		defer predictor.Close()

		extractor, err := onnx.NewExtractor(strat.ScalerPath)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to load scaler", map[string]interface{}{"strategy": strat.ID.String()})
			log.Fatalf("FATAL: Failed to load scaler for %s: %v", strat.ID.String(), err)
		}

		generator, err := signal.NewGenerator(strat, predictor, extractor, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize signal generator", map[string]interface{}{"strategy": strat.ID.String()})
			log.Fatalf("FATAL: Failed to initialize signal generator for %s: %v", strat.ID.String(), err)
		}

		runtimes = append(runtimes, &app.StrategyRuntime{Strategy: strat, Signals: generator})
	}
	appLogger.Info(ctx, "Strategy runtimes initialized", map[string]interface{}{"count": len(runtimes)})

	// 9. Initialize Application Service
	tradingService, err := app.NewTradingService(
		cfg,
		appLogger,
		binanceClient,
		repo,
		repo,
		stateStore,
		notifier,
		governor,
		runtimes,
	)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 10. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
