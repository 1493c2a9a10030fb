package onnx

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/indicators"
	"neuroTradeBot/internal/ports"
)

// FeatureCount is the length of the vector the model was trained on.
const FeatureCount = 6

// scalerParams are the standardization constants exported at training time.
type scalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Extractor builds the model's feature vector for the most recent closed
// candle: short-horizon returns, the candle's range shape, and the volume
// ratio against its rolling mean, standardized with the training scaler.
type Extractor struct {
	scaler scalerParams
}

// NewExtractor loads the scaler parameters exported with the model.
func NewExtractor(scalerPath string) (*Extractor, error) {
	data, err := os.ReadFile(scalerPath)
	if err != nil {
		return nil, fmt.Errorf("reading scaler params %s: %w", scalerPath, err)
	}
	var params scalerParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("%w: scaler params %s: %v", ports.ErrStateCorrupt, scalerPath, err)
	}
	if len(params.Mean) != FeatureCount || len(params.Scale) != FeatureCount {
		return nil, fmt.Errorf("%w: scaler params carry %d/%d values, want %d",
			ports.ErrBadFeatureVector, len(params.Mean), len(params.Scale), FeatureCount)
	}
	for i, s := range params.Scale {
		if s == 0 {
			return nil, fmt.Errorf("%w: scale[%d] is zero", ports.ErrBadFeatureVector, i)
		}
	}
	return &Extractor{scaler: params}, nil
}

// minimum window: the longest return horizon plus the volume lookback.
const featureWindow = 26

// Features computes the scaled feature vector for the last candle of the
// window. A window too short to compute every feature yields a nil vector.
func (e *Extractor) Features(klines []*domain.Kline) (ports.FeatureVector, error) {
	if len(klines) < featureWindow {
		return nil, nil
	}
	last := len(klines) - 1
	k := klines[last]
	if k.Close <= 0 {
		return nil, fmt.Errorf("%w: non-positive close", ports.ErrBadFeatureVector)
	}

	ret := func(horizon int) float64 {
		prev := klines[last-horizon].Close
		if prev <= 0 {
			return math.NaN()
		}
		return k.Close/prev - 1
	}

	rng := k.Range()
	closePos := 0.5
	if rng > 0 {
		closePos = (k.Close - k.Low) / rng
	}

	volumes := make([]float64, len(klines))
	for i, kl := range klines {
		volumes[i] = kl.Volume
	}
	volMean, ok := indicators.RollingMean(volumes, last, 20)
	if !ok || volMean <= 0 {
		return nil, nil
	}

	raw := [FeatureCount]float64{
		ret(1),
		ret(3),
		ret(6),
		rng / k.Close,
		closePos,
		k.Volume / volMean,
	}

	features := make(ports.FeatureVector, FeatureCount)
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: feature %d is not finite", ports.ErrBadFeatureVector, i)
		}
		features[i] = float32((v - e.scaler.Mean[i]) / e.scaler.Scale[i])
	}
	return features, nil
}
