package indicators

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroTradeBot/internal/domain"
)

func flatCandles(n int) []*domain.Kline {
	klines := make([]*domain.Kline, n)
	for i := range klines {
		klines[i] = &domain.Kline{Open: 100, High: 101, Low: 99, Close: 100}
	}
	return klines
}

func TestATR_Series_FlatTape(t *testing.T) {
	atr := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 14}})
	series, err := atr.Series(context.Background(), flatCandles(30))
	require.NoError(t, err)
	require.Len(t, series, 30)

	// Every true range is the 2.0 candle range, so the smoothed value is too.
	for i := 0; i < 13; i++ {
		assert.True(t, math.IsNaN(series[i]), "index %d should be warmup", i)
	}
	for i := 13; i < 30; i++ {
		assert.InDelta(t, 2.0, series[i], 1e-9, "index %d", i)
	}
}

func TestATR_Series_GapUsesPreviousClose(t *testing.T) {
	// Second candle gaps up: true range stretches to the previous close.
	klines := []*domain.Kline{
		{High: 101, Low: 99, Close: 100},
		{High: 111, Low: 109, Close: 110},
		{High: 111, Low: 109, Close: 110},
	}
	atr := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 2}})
	series, err := atr.Series(context.Background(), klines)
	require.NoError(t, err)

	// TR = [2, 11, 2]; seed = (2+11)/2 = 6.5; Wilder: (6.5*1 + 2)/2 = 4.25.
	assert.True(t, math.IsNaN(series[0]))
	assert.InDelta(t, 6.5, series[1], 1e-9)
	assert.InDelta(t, 4.25, series[2], 1e-9)
}

func TestATR_Calculate_ReturnsLatest(t *testing.T) {
	atr := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 14}})
	v, err := atr.Calculate(context.Background(), flatCandles(30))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestATR_NotEnoughData(t *testing.T) {
	atr := NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: 14}})
	_, err := atr.Series(context.Background(), flatCandles(14))
	assert.Error(t, err)
}
