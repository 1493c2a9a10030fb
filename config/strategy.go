package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"neuroTradeBot/internal/domain"
)

// strategyFile is the YAML layout of a strategy definitions file. Rate fields
// carry the _pct suffix and are human-readable percents; the conversion to
// fractions happens exactly once, in toDomain.
type strategyFile struct {
	Strategies []strategyEntry `yaml:"strategies"`
}

type strategyEntry struct {
	Symbol              string    `yaml:"symbol"`
	Timeframe           string    `yaml:"timeframe"`
	ModelPath           string    `yaml:"model_path"`
	ScalerPath          string    `yaml:"scaler_path"`
	PredictionThreshold float64   `yaml:"prediction_threshold"`
	UseLongs            bool      `yaml:"use_longs"`
	UseShorts           bool      `yaml:"use_shorts"`
	Risk                riskEntry `yaml:"risk"`
}

type riskEntry struct {
	RiskPerTradePct      float64 `yaml:"risk_per_trade_pct"`
	RiskRewardRatio      float64 `yaml:"risk_reward_ratio"`
	InitialStopPct       float64 `yaml:"initial_stop_pct"`
	MinStopPct           float64 `yaml:"min_stop_pct"`
	ATRStopMultiplier    float64 `yaml:"atr_stop_multiplier"`
	Leverage             int     `yaml:"leverage"`
	TrailingActivationRR float64 `yaml:"trailing_activation_rr"`
	TrailingCallbackPct  float64 `yaml:"trailing_callback_pct"`
	CapGains             *bool   `yaml:"cap_gains"` // Defaults to true when omitted
	MaxHoldCandles       int     `yaml:"max_hold_candles"`
}

// LoadStrategies reads and validates the strategy definitions file. Every
// returned strategy carries fraction-only risk parameters and a unique ID.
func LoadStrategies(path string) ([]domain.Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategies file %s: %w", path, err)
	}

	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing strategies file %s: %w", path, err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("strategies file %s defines no strategies", path)
	}

	var errs []string
	seen := make(map[domain.StrategyID]bool)
	strategies := make([]domain.Strategy, 0, len(file.Strategies))
	for i, entry := range file.Strategies {
		strategy, err := entry.toDomain()
		if err != nil {
			errs = append(errs, fmt.Sprintf("strategy %d (%s %s): %v", i, entry.Symbol, entry.Timeframe, err))
			continue
		}
		if seen[strategy.ID] {
			errs = append(errs, fmt.Sprintf("strategy %d: duplicate ID %s", i, strategy.ID.String()))
			continue
		}
		seen[strategy.ID] = true
		strategies = append(strategies, strategy)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("strategy validation failed: %s", strings.Join(errs, "; "))
	}
	return strategies, nil
}

func (e strategyEntry) toDomain() (domain.Strategy, error) {
	if e.Symbol == "" || e.Timeframe == "" {
		return domain.Strategy{}, fmt.Errorf("symbol and timeframe are required")
	}
	if e.ModelPath == "" {
		return domain.Strategy{}, fmt.Errorf("model_path is required")
	}
	if e.PredictionThreshold <= 0.5 || e.PredictionThreshold >= 1 {
		return domain.Strategy{}, fmt.Errorf("prediction_threshold must be in (0.5, 1), got %v", e.PredictionThreshold)
	}
	if !e.UseLongs && !e.UseShorts {
		return domain.Strategy{}, fmt.Errorf("at least one of use_longs/use_shorts must be enabled")
	}

	capGains := true
	if e.Risk.CapGains != nil {
		capGains = *e.Risk.CapGains
	}
	risk := domain.RiskParams{
		RiskPerTrade:         e.Risk.RiskPerTradePct / 100,
		RiskRewardRatio:      e.Risk.RiskRewardRatio,
		InitialStopFraction:  e.Risk.InitialStopPct / 100,
		MinStopFraction:      e.Risk.MinStopPct / 100,
		ATRStopMultiplier:    e.Risk.ATRStopMultiplier,
		Leverage:             e.Risk.Leverage,
		TrailingActivationRR: e.Risk.TrailingActivationRR,
		TrailingCallbackRate: e.Risk.TrailingCallbackPct / 100,
		CapGains:             capGains,
		MaxHoldCandles:       e.Risk.MaxHoldCandles,
	}
	if err := risk.Validate(); err != nil {
		return domain.Strategy{}, err
	}

	return domain.Strategy{
		ID:                  domain.StrategyID{Symbol: e.Symbol, Timeframe: e.Timeframe},
		ModelPath:           e.ModelPath,
		ScalerPath:          e.ScalerPath,
		PredictionThreshold: e.PredictionThreshold,
		UseLongs:            e.UseLongs,
		UseShorts:           e.UseShorts,
		Risk:                risk,
	}, nil
}
