package indicators

import (
	"context"
	"fmt"
	"math"

	"neuroTradeBot/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// trueRanges computes the true range for every kline. The first entry falls
// back to the plain high-low range since there is no previous close.
func trueRanges(klines []*domain.Kline) []float64 {
	trs := make([]float64, len(klines))
	if len(klines) == 0 {
		return trs
	}
	trs[0] = klines[0].Range()
	for i := 1; i < len(klines); i++ {
		trs[i] = klines[i].TrueRange(klines[i-1])
	}
	return trs
}

// Calculate computes the ATR for the most recent kline using Wilder's smoothing.
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	series, err := a.Series(ctx, klines)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Series computes the full ATR series aligned with the input klines. Entries
// before the warmup period are NaN.
func (a *ATR) Series(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	period := a.Config.Period
	if len(klines) < period+1 {
		return nil, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(klines))
	}

	trs := trueRanges(klines)
	series := make([]float64, len(klines))

	// Seed with the simple average of the first 'period' true ranges,
	// then apply Wilder's smoothing.
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trs[i]
		series[i] = math.NaN()
	}
	atr /= float64(period)
	series[period-1] = atr

	for i := period; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
		series[i] = atr
	}
	return series, nil
}
