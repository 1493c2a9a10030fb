package indicators

import (
	"context"
	"fmt"
	"math"

	"neuroTradeBot/internal/domain"
)

// SuperTrendConfig holds configuration for the SuperTrend indicator.
type SuperTrendConfig struct {
	IndicatorConfig         // Period is the ATR window (typically 10)
	Multiplier      float64 // Band width as a multiple of ATR (typically 3.0)
}

// SuperTrend computes the SuperTrend trend direction used to gate model
// signals: only longs in an up-trend, only shorts in a down-trend.
type SuperTrend struct {
	BaseIndicator
	multiplier float64
}

// NewSuperTrend creates a new SuperTrend indicator instance.
func NewSuperTrend(cfg SuperTrendConfig) *SuperTrend {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 3.0
	}
	return &SuperTrend{
		BaseIndicator: BaseIndicator{Config: cfg.IndicatorConfig},
		multiplier:    multiplier,
	}
}

// Name returns the name of the indicator.
func (s *SuperTrend) Name() string {
	return "SuperTrend"
}

// Calculate returns the direction for the most recent kline as a float
// (+1 up, -1 down) to satisfy the Indicator interface.
func (s *SuperTrend) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	dirs, err := s.DirectionSeries(ctx, klines)
	if err != nil {
		return 0, err
	}
	return float64(dirs[len(dirs)-1]), nil
}

// DirectionSeries computes the trend direction for every kline. Entries
// before the ATR warmup are TrendNone. The final upper band tightens downward
// and the final lower band tightens upward; the trend flips when the close
// crosses the active band.
func (s *SuperTrend) DirectionSeries(ctx context.Context, klines []*domain.Kline) ([]domain.TrendDirection, error) {
	period := s.Config.Period
	if len(klines) < period+1 {
		return nil, fmt.Errorf("not enough data points for SuperTrend: need %d, got %d", period+1, len(klines))
	}

	atrSeries, err := NewATR(ATRConfig{IndicatorConfig: s.Config}).Series(ctx, klines)
	if err != nil {
		return nil, err
	}

	dirs := make([]domain.TrendDirection, len(klines))
	finalUpper := make([]float64, len(klines))
	finalLower := make([]float64, len(klines))
	supertrend := make([]float64, len(klines))

	// First candle with a valid ATR seeds the bands; direction starts down on
	// the upper band, matching the reference implementation.
	start := period - 1
	for i := 0; i < start; i++ {
		dirs[i] = domain.TrendNone
	}
	basicUpper := func(i int) float64 {
		hl2 := (klines[i].High + klines[i].Low) / 2
		return hl2 + s.multiplier*atrSeries[i]
	}
	basicLower := func(i int) float64 {
		hl2 := (klines[i].High + klines[i].Low) / 2
		return hl2 - s.multiplier*atrSeries[i]
	}

	finalUpper[start] = basicUpper(start)
	finalLower[start] = basicLower(start)
	supertrend[start] = finalUpper[start]
	dirs[start] = domain.TrendDown

	for i := start + 1; i < len(klines); i++ {
		if math.IsNaN(atrSeries[i]) {
			dirs[i] = domain.TrendNone
			continue
		}
		bu, bl := basicUpper(i), basicLower(i)
		prevClose := klines[i-1].Close

		if bu < finalUpper[i-1] || prevClose > finalUpper[i-1] {
			finalUpper[i] = bu
		} else {
			finalUpper[i] = finalUpper[i-1]
		}
		if bl > finalLower[i-1] || prevClose < finalLower[i-1] {
			finalLower[i] = bl
		} else {
			finalLower[i] = finalLower[i-1]
		}

		close := klines[i].Close
		switch supertrend[i-1] {
		case finalUpper[i-1]:
			if close <= finalUpper[i] {
				supertrend[i] = finalUpper[i]
				dirs[i] = domain.TrendDown
			} else {
				supertrend[i] = finalLower[i]
				dirs[i] = domain.TrendUp
			}
		case finalLower[i-1]:
			if close >= finalLower[i] {
				supertrend[i] = finalLower[i]
				dirs[i] = domain.TrendUp
			} else {
				supertrend[i] = finalUpper[i]
				dirs[i] = domain.TrendDown
			}
		default:
			if close > supertrend[i-1] {
				supertrend[i] = finalLower[i]
				dirs[i] = domain.TrendUp
			} else {
				supertrend[i] = finalUpper[i]
				dirs[i] = domain.TrendDown
			}
		}
	}
	return dirs, nil
}
