// Package signal turns scored candles into trade signals. The model
// probability decides the direction, the trend filter and the slow EMA
// baseline gate it, and the volume and volatility filters drop entries in
// regimes the model was not trained on. Generation is deterministic:
// identical candles and model outputs produce identical signal streams.
package signal

import (
	"context"
	"fmt"
	"math"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/indicators"
	"neuroTradeBot/internal/ports"
)

// Filter thresholds, relative to their rolling baselines.
const (
	volumeLookback     = 20
	volumeMinRatio     = 0.8 // candle volume vs its rolling mean
	volatilityLookback = 50
	volatilityMaxRatio = 2.0 // normalized ATR vs its rolling mean
	trendPeriod        = 10
	trendMultiplier    = 3.0
	atrPeriod          = 14
	baselinePeriod     = 50 // slow EMA confirming the entry direction
)

// Generator produces the ordered signal stream for one strategy.
type Generator struct {
	strategy  domain.Strategy
	predictor ports.Predictor
	extractor ports.FeatureExtractor
	logger    ports.Logger
}

// NewGenerator creates a signal generator for a strategy.
func NewGenerator(strategy domain.Strategy, predictor ports.Predictor, extractor ports.FeatureExtractor, logger ports.Logger) (*Generator, error) {
	if predictor == nil || extractor == nil {
		return nil, fmt.Errorf("%w: predictor and feature extractor are required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if strategy.PredictionThreshold <= 0.5 || strategy.PredictionThreshold >= 1 {
		return nil, fmt.Errorf("%w: prediction threshold must be in (0.5, 1), got %v",
			ports.ErrConfigurationError, strategy.PredictionThreshold)
	}
	return &Generator{strategy: strategy, predictor: predictor, extractor: extractor, logger: logger}, nil
}

// Generate scores every scorable candle and returns the accepted signals in
// candle order. A candle that cannot be scored (warmup, missing features,
// model failure) is skipped, never fatal.
func (g *Generator) Generate(ctx context.Context, klines []*domain.Kline) ([]domain.Signal, error) {
	op := "signal.Generate"

	warmup := maxInt(volatilityLookback+atrPeriod, trendPeriod+1)
	warmup = maxInt(warmup, baselinePeriod)
	if len(klines) <= warmup {
		return nil, nil
	}

	trend, err := indicators.NewSuperTrend(indicators.SuperTrendConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: trendPeriod},
		Multiplier:      trendMultiplier,
	}).DirectionSeries(ctx, klines)
	if err != nil {
		return nil, fmt.Errorf("computing trend filter: %w", err)
	}
	atr, err := indicators.NewATR(indicators.ATRConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: atrPeriod},
	}).Series(ctx, klines)
	if err != nil {
		return nil, fmt.Errorf("computing volatility filter: %w", err)
	}
	baseline := indicators.NewMovingAverage(indicators.MovingAverageConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: baselinePeriod},
		Type:            indicators.ExponentialMovingAverage,
	})

	volumes := make([]float64, len(klines))
	normATR := make([]float64, len(klines))
	for i, k := range klines {
		volumes[i] = k.Volume
		normATR[i] = math.NaN()
		if !math.IsNaN(atr[i]) && k.Close > 0 {
			normATR[i] = atr[i] / k.Close
		}
	}

	var signals []domain.Signal
	skipped := 0
	for i := warmup; i < len(klines); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("signal generation cancelled: %w", err)
		}
		k := klines[i]

		side, ok := g.direction(ctx, klines[:i+1], trend[i-1])
		if !ok {
			skipped++
			continue
		}
		if !g.filtersPass(i, volumes, normATR) {
			continue
		}
		ema, err := baseline.Calculate(ctx, klines[:i+1])
		if err != nil {
			skipped++
			continue
		}
		if !baselineConfirms(side, k.Close, ema) {
			continue
		}

		signals = append(signals, domain.Signal{
			Timestamp:  k.OpenTime,
			StrategyID: g.strategy.ID,
			Symbol:     g.strategy.ID.Symbol,
			Side:       side,
			EntryPrice: k.Close,
			Risk:       g.strategy.Risk,
		})
	}

	g.logger.Info(ctx, "signal generation complete", map[string]interface{}{
		"op":       op,
		"strategy": g.strategy.ID.String(),
		"candles":  len(klines) - warmup,
		"signals":  len(signals),
		"skipped":  skipped,
	})
	return signals, nil
}

// direction scores the window ending at the last candle and gates the model's
// verdict with the previous candle's trend direction. The previous candle is
// used because the current candle's trend value incorporates the close the
// entry executes at.
func (g *Generator) direction(ctx context.Context, window []*domain.Kline, prevTrend domain.TrendDirection) (domain.Side, bool) {
	features, err := g.extractor.Features(window)
	if err != nil || features == nil {
		return "", false
	}
	for _, f := range features {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return "", false
		}
	}

	prob, err := g.predictor.Predict(features)
	if err != nil {
		g.logger.Warn(ctx, "prediction failed, skipping candle", map[string]interface{}{
			"op":       "signal.direction",
			"strategy": g.strategy.ID.String(),
			"error":    err.Error(),
		})
		return "", false
	}

	switch {
	case g.strategy.UseLongs && prob >= g.strategy.PredictionThreshold && prevTrend == domain.TrendUp:
		return domain.Long, true
	case g.strategy.UseShorts && prob <= 1-g.strategy.PredictionThreshold && prevTrend == domain.TrendDown:
		return domain.Short, true
	default:
		return "", false
	}
}

// filtersPass applies the regime filters: volume must hold up against its
// rolling mean and normalized volatility must not blow out against its own.
func (g *Generator) filtersPass(i int, volumes, normATR []float64) bool {
	volMean, ok := indicators.RollingMean(volumes, i, volumeLookback)
	if !ok || volMean <= 0 {
		return false
	}
	if volumes[i] < volMean*volumeMinRatio {
		return false
	}

	if math.IsNaN(normATR[i]) {
		return false
	}
	atrMean, ok := rollingMeanSkipNaN(normATR, i, volatilityLookback)
	if !ok || atrMean <= 0 {
		return false
	}
	return normATR[i] <= atrMean*volatilityMaxRatio
}

// baselineConfirms keeps entries on the right side of the slow EMA: longs at
// or above it, shorts at or below it. A close sitting exactly on the baseline
// blocks neither side.
func baselineConfirms(side domain.Side, close, ema float64) bool {
	if side == domain.Long {
		return close >= ema
	}
	return close <= ema
}

// rollingMeanSkipNaN averages the trailing window excluding NaN warmup
// entries; requires at least half the window to be usable.
func rollingMeanSkipNaN(values []float64, i, period int) (float64, bool) {
	if i < period {
		return 0, false
	}
	total, n := 0.0, 0
	for j := i - period; j < i; j++ {
		if math.IsNaN(values[j]) {
			continue
		}
		total += values[j]
		n++
	}
	if n < period/2 {
		return 0, false
	}
	return total / float64(n), true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
