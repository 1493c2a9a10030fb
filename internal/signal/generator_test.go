package signal

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"
)

// --- Mocks ---

type mockPredictor struct {
	prob float64
	err  error
}

func (m *mockPredictor) Predict(ports.FeatureVector) (float64, error) { return m.prob, m.err }
func (m *mockPredictor) Close() error                                 { return nil }

type mockExtractor struct {
	features ports.FeatureVector
	err      error
}

func (m *mockExtractor) Features([]*domain.Kline) (ports.FeatureVector, error) {
	return m.features, m.err
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

// --- Fixtures ---

func testStrategy() domain.Strategy {
	return domain.Strategy{
		ID:                  domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"},
		PredictionThreshold: 0.7,
		UseLongs:            true,
		UseShorts:           true,
		Risk: domain.RiskParams{
			RiskPerTrade:         0.01,
			RiskRewardRatio:      2.0,
			InitialStopFraction:  0.02,
			Leverage:             10,
			TrailingActivationRR: 1.0,
			TrailingCallbackRate: 0.01,
		},
	}
}

// uptrendKlines builds a steadily rising series with constant range and
// volume: the trend filter settles into an up-trend well before the filter
// warmup ends, and both regime filters sit comfortably inside their bounds.
func uptrendKlines(n int) []*domain.Kline {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, n)
	for i := 0; i < n; i++ {
		close := 100 + 0.5*float64(i)
		open := base.Add(time.Duration(i) * time.Hour)
		klines[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      close - 0.5,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
			Volume:    1000,
			IsFinal:   true,
		}
	}
	return klines
}

// downtrendKlines mirrors uptrendKlines with a steady decline, so the trend
// filter settles into a down-trend and price stays under its EMA baseline.
func downtrendKlines(n int) []*domain.Kline {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, n)
	for i := 0; i < n; i++ {
		close := 200 - 0.5*float64(i)
		open := base.Add(time.Duration(i) * time.Hour)
		klines[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      close + 0.5,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
			Volume:    1000,
			IsFinal:   true,
		}
	}
	return klines
}

func newTestGenerator(t *testing.T, pred *mockPredictor, ext *mockExtractor) *Generator {
	t.Helper()
	g, err := NewGenerator(testStrategy(), pred, ext, nopLogger{})
	require.NoError(t, err)
	return g
}

func validFeatures() ports.FeatureVector {
	return ports.FeatureVector{0.1, -0.3, 0.7, 0.2}
}

// --- Tests ---

func TestNewGenerator_Validation(t *testing.T) {
	pred := &mockPredictor{}
	ext := &mockExtractor{}

	_, err := NewGenerator(testStrategy(), nil, ext, nopLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewGenerator(testStrategy(), pred, nil, nopLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	s := testStrategy()
	s.PredictionThreshold = 0.4
	_, err = NewGenerator(s, pred, ext, nopLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestGenerate_LongsInUptrend(t *testing.T) {
	g := newTestGenerator(t, &mockPredictor{prob: 0.9}, &mockExtractor{features: validFeatures()})

	signals, err := g.Generate(context.Background(), uptrendKlines(80))
	require.NoError(t, err)
	require.NotEmpty(t, signals)

	var prev time.Time
	for _, sig := range signals {
		assert.Equal(t, domain.Long, sig.Side)
		assert.Equal(t, "ETHUSDT", sig.Symbol)
		assert.True(t, sig.Timestamp.After(prev), "signals must be strictly ordered")
		prev = sig.Timestamp
	}
}

func TestGenerate_ShortsInDowntrend(t *testing.T) {
	g := newTestGenerator(t, &mockPredictor{prob: 0.1}, &mockExtractor{features: validFeatures()})

	signals, err := g.Generate(context.Background(), downtrendKlines(80))
	require.NoError(t, err)
	require.NotEmpty(t, signals)

	for _, sig := range signals {
		assert.Equal(t, domain.Short, sig.Side)
	}
}

func TestBaselineConfirms(t *testing.T) {
	assert.True(t, baselineConfirms(domain.Long, 101, 100))
	assert.False(t, baselineConfirms(domain.Long, 99, 100))
	assert.True(t, baselineConfirms(domain.Short, 99, 100))
	assert.False(t, baselineConfirms(domain.Short, 101, 100))
	// On the baseline exactly, neither side is blocked.
	assert.True(t, baselineConfirms(domain.Long, 100, 100))
	assert.True(t, baselineConfirms(domain.Short, 100, 100))
}

func TestGenerate_BelowThresholdYieldsNothing(t *testing.T) {
	g := newTestGenerator(t, &mockPredictor{prob: 0.6}, &mockExtractor{features: validFeatures()})

	signals, err := g.Generate(context.Background(), uptrendKlines(80))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestGenerate_ShortBlockedByUptrend(t *testing.T) {
	// Model is confidently short, but the trend filter disagrees.
	g := newTestGenerator(t, &mockPredictor{prob: 0.1}, &mockExtractor{features: validFeatures()})

	signals, err := g.Generate(context.Background(), uptrendKlines(80))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestGenerate_BadFeaturesSkippedNotFatal(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		ext  *mockExtractor
	}{
		{"NaN feature", &mockExtractor{features: ports.FeatureVector{0.1, nan, 0.3}}},
		{"nil vector", &mockExtractor{features: nil}},
		{"extractor error", &mockExtractor{err: ports.ErrBadFeatureVector}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, &mockPredictor{prob: 0.9}, tt.ext)
			signals, err := g.Generate(context.Background(), uptrendKlines(80))
			require.NoError(t, err)
			assert.Empty(t, signals)
		})
	}
}

func TestGenerate_PredictorErrorSkippedNotFatal(t *testing.T) {
	g := newTestGenerator(t,
		&mockPredictor{err: errors.New("session closed")},
		&mockExtractor{features: validFeatures()})

	signals, err := g.Generate(context.Background(), uptrendKlines(80))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestGenerate_LowVolumeFiltered(t *testing.T) {
	pred := &mockPredictor{prob: 0.9}
	ext := &mockExtractor{features: validFeatures()}

	baseline, err := newTestGenerator(t, pred, ext).Generate(context.Background(), uptrendKlines(80))
	require.NoError(t, err)
	require.NotEmpty(t, baseline)

	// Starving one scorable candle of volume must drop exactly that signal.
	klines := uptrendKlines(80)
	klines[70].Volume = 10
	filtered, err := newTestGenerator(t, pred, ext).Generate(context.Background(), klines)
	require.NoError(t, err)
	assert.Len(t, filtered, len(baseline)-1)
}

func TestGenerate_TooFewCandles(t *testing.T) {
	g := newTestGenerator(t, &mockPredictor{prob: 0.9}, &mockExtractor{features: validFeatures()})

	signals, err := g.Generate(context.Background(), uptrendKlines(30))
	require.NoError(t, err)
	assert.Nil(t, signals)
}
