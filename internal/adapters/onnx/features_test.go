package onnx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"
)

func writeScaler(t *testing.T, params scalerParams) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scaler.json")
	data, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func identityScaler() scalerParams {
	return scalerParams{
		Mean:  make([]float64, FeatureCount),
		Scale: []float64{1, 1, 1, 1, 1, 1},
	}
}

func flatKlines(n int) []*domain.Kline {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, n)
	for i := 0; i < n; i++ {
		open := base.Add(time.Duration(i) * time.Hour)
		klines[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      100,
			High:      102,
			Low:       98,
			Close:     101,
			Volume:    1000,
			IsFinal:   true,
		}
	}
	return klines
}

func TestNewExtractor_Validation(t *testing.T) {
	_, err := NewExtractor(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	badLen := identityScaler()
	badLen.Mean = badLen.Mean[:2]
	_, err = NewExtractor(writeScaler(t, badLen))
	assert.ErrorIs(t, err, ports.ErrBadFeatureVector)

	zeroScale := identityScaler()
	zeroScale.Scale[3] = 0
	_, err = NewExtractor(writeScaler(t, zeroScale))
	assert.ErrorIs(t, err, ports.ErrBadFeatureVector)
}

func TestFeatures_IdentityScaler(t *testing.T) {
	ext, err := NewExtractor(writeScaler(t, identityScaler()))
	require.NoError(t, err)

	features, err := ext.Features(flatKlines(40))
	require.NoError(t, err)
	require.Len(t, features, FeatureCount)

	// Flat series: zero returns, range 4/101, close at 3/4 of the range,
	// volume exactly on its mean.
	assert.InDelta(t, 0, float64(features[0]), 1e-6)
	assert.InDelta(t, 0, float64(features[1]), 1e-6)
	assert.InDelta(t, 0, float64(features[2]), 1e-6)
	assert.InDelta(t, 4.0/101.0, float64(features[3]), 1e-6)
	assert.InDelta(t, 0.75, float64(features[4]), 1e-6)
	assert.InDelta(t, 1.0, float64(features[5]), 1e-6)
}

func TestFeatures_Standardization(t *testing.T) {
	params := identityScaler()
	params.Mean[5] = 1.0
	params.Scale[5] = 0.5
	ext, err := NewExtractor(writeScaler(t, params))
	require.NoError(t, err)

	features, err := ext.Features(flatKlines(40))
	require.NoError(t, err)
	// (1.0 - 1.0) / 0.5
	assert.InDelta(t, 0, float64(features[5]), 1e-6)
}

func TestFeatures_ShortWindowYieldsNil(t *testing.T) {
	ext, err := NewExtractor(writeScaler(t, identityScaler()))
	require.NoError(t, err)

	features, err := ext.Features(flatKlines(10))
	require.NoError(t, err)
	assert.Nil(t, features)
}
