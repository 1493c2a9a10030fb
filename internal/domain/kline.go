package domain

import (
	"math"
	"time"
)

// Kline is one OHLCV candle for a symbol at a fixed interval. Times are the
// interval boundaries as reported by the exchange.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Symbol    string
	Interval  string // e.g. "1m", "1h"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsFinal   bool // closed candle; forming candles are never traded on
}

// Range returns the high-to-low spread of the candle.
func (k *Kline) Range() float64 {
	return k.High - k.Low
}

// TrueRange extends Range with the gap against the previous close. With no
// previous candle it degrades to the plain range.
func (k *Kline) TrueRange(prev *Kline) float64 {
	tr := k.Range()
	if prev == nil {
		return tr
	}
	tr = math.Max(tr, math.Abs(k.High-prev.Close))
	return math.Max(tr, math.Abs(k.Low-prev.Close))
}
