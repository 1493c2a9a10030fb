package ports

import "neuroTradeBot/internal/domain"

// FeatureVector is the scaled model input for one candle. Feature engineering
// itself is a black box to the core; the signal source only checks the vector
// for completeness before inference.
type FeatureVector []float32

// Predictor scores a feature vector with the trained model, returning the
// probability of an upward move in [0,1].
type Predictor interface {
	Predict(features FeatureVector) (float64, error)
	Close() error
}

// FeatureExtractor turns a candle window into the model's feature vector for
// the most recent closed candle. A nil vector or an error means the candle
// cannot be scored and must be skipped, never treated as fatal.
type FeatureExtractor interface {
	Features(klines []*domain.Kline) (FeatureVector, error)
}
