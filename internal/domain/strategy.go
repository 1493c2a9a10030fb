package domain

import "fmt"

// StrategyID identifies one configured strategy: a (symbol, timeframe) pair
// trading one model configuration. It is the unit of position exclusivity in
// the portfolio: at most one position may be open per StrategyID.
type StrategyID struct {
	Symbol    string
	Timeframe string
}

// String renders the ID in the form used for persisted state keys, e.g. "ETHUSDT_1h".
func (id StrategyID) String() string {
	return fmt.Sprintf("%s_%s", id.Symbol, id.Timeframe)
}

// RiskParams is the complete risk-parameter set needed to size and manage a
// position. All rate fields are fractions (0.02 means 2%); the conversion from
// human-readable percent happens once, at the configuration boundary.
type RiskParams struct {
	RiskPerTrade         float64 // Fraction of equity risked per trade
	RiskRewardRatio      float64 // Target distance as a multiple of the stop distance
	InitialStopFraction  float64 // Fixed stop distance as a fraction of entry price
	MinStopFraction      float64 // Floor for the ATR-based stop distance (fraction of entry)
	ATRStopMultiplier    float64 // Stop distance = max(ATR * multiplier, entry * MinStopFraction)
	Leverage             int     // Position leverage
	TrailingActivationRR float64 // Trailing stop arms at entry +/- stop distance * this
	TrailingCallbackRate float64 // Trailing stop recedes this fraction from the best price
	CapGains             bool    // Cap realized profit at risk amount * RR
	MaxHoldCandles       int     // Force close after this many candles (0 = no limit)
}

// Validate checks that all fraction fields are in range and the multipliers are sane.
func (p RiskParams) Validate() error {
	checkFraction := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be a fraction in [0,1], got %v", name, v)
		}
		return nil
	}
	if err := checkFraction("risk_per_trade", p.RiskPerTrade); err != nil {
		return err
	}
	if err := checkFraction("initial_stop", p.InitialStopFraction); err != nil {
		return err
	}
	if err := checkFraction("min_stop", p.MinStopFraction); err != nil {
		return err
	}
	if err := checkFraction("trailing_callback_rate", p.TrailingCallbackRate); err != nil {
		return err
	}
	if p.RiskPerTrade == 0 {
		return fmt.Errorf("risk_per_trade must be positive")
	}
	if p.RiskRewardRatio <= 0 {
		return fmt.Errorf("risk_reward_ratio must be positive, got %v", p.RiskRewardRatio)
	}
	if p.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", p.Leverage)
	}
	if p.TrailingActivationRR <= 0 {
		return fmt.Errorf("trailing_activation_rr must be positive, got %v", p.TrailingActivationRR)
	}
	if p.MaxHoldCandles < 0 {
		return fmt.Errorf("max_hold_candles cannot be negative, got %d", p.MaxHoldCandles)
	}
	return nil
}

// Strategy is one tradable configuration: a symbol/timeframe pair, the model
// that scores its candles, and the risk parameters applied to its trades.
type Strategy struct {
	ID                  StrategyID
	ModelPath           string  // Path to the ONNX model file
	ScalerPath          string  // Path to the feature scaler parameters
	PredictionThreshold float64 // Long at prob >= threshold, short at prob <= 1-threshold
	UseLongs            bool
	UseShorts           bool
	Risk                RiskParams
}
