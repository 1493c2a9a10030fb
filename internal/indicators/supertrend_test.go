package indicators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroTradeBot/internal/domain"
)

func trendingCandles(n int, start, step float64) []*domain.Kline {
	klines := make([]*domain.Kline, n)
	for i := range klines {
		close := start + step*float64(i)
		klines[i] = &domain.Kline{Open: close - step, High: close + 1, Low: close - 1, Close: close}
	}
	return klines
}

func newSuperTrend() *SuperTrend {
	return NewSuperTrend(SuperTrendConfig{
		IndicatorConfig: IndicatorConfig{Period: 10},
		Multiplier:      3.0,
	})
}

func TestDirectionSeries_RisingTapeFlipsUp(t *testing.T) {
	klines := trendingCandles(60, 100, 2)
	dirs, err := newSuperTrend().DirectionSeries(context.Background(), klines)
	require.NoError(t, err)
	require.Len(t, dirs, 60)

	for i := 0; i < 9; i++ {
		assert.Equal(t, domain.TrendNone, dirs[i], "index %d is warmup", i)
	}
	assert.Equal(t, domain.TrendDown, dirs[9], "direction seeds on the upper band")

	firstUp := -1
	for i, d := range dirs {
		if d == domain.TrendUp {
			firstUp = i
			break
		}
	}
	require.Greater(t, firstUp, 9, "flip cannot precede the seed")
	for i := firstUp; i < len(dirs); i++ {
		assert.Equal(t, domain.TrendUp, dirs[i], "rising tape must stay up after the flip (index %d)", i)
	}
}

func TestDirectionSeries_FallingTapeStaysDown(t *testing.T) {
	klines := trendingCandles(60, 300, -2)
	dirs, err := newSuperTrend().DirectionSeries(context.Background(), klines)
	require.NoError(t, err)

	for i := 9; i < len(dirs); i++ {
		assert.Equal(t, domain.TrendDown, dirs[i], "index %d", i)
	}
}

func TestCalculate_ReturnsLatestDirection(t *testing.T) {
	v, err := newSuperTrend().Calculate(context.Background(), trendingCandles(60, 100, 2))
	require.NoError(t, err)
	assert.Equal(t, float64(domain.TrendUp), v)
}

func TestDirectionSeries_NotEnoughData(t *testing.T) {
	_, err := newSuperTrend().DirectionSeries(context.Background(), trendingCandles(10, 100, 2))
	assert.Error(t, err)
}
