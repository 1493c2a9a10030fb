package domain

import "time"

// Position is one open trade, owned exclusively by the portfolio engine (or
// the live service) while open.
//
// Invariants: MarginUsed > 0 and Notional = MarginUsed * Leverage for the
// lifetime of the position. While TrailingActive is false the stop stays at
// its initial level; once true it only ratchets toward profit, never against.
type Position struct {
	ID         int64 // Assigned by the repository when persisted (live mode)
	StrategyID StrategyID
	Symbol     string
	Side       Side
	State      PositionState

	EntryPrice float64
	EntryTime  time.Time
	Notional   float64 // Total exposure = MarginUsed * Leverage
	MarginUsed float64
	Leverage   int

	StopLoss   float64 // Mutable; ratchets only in the favorable direction
	TakeProfit float64 // Fixed at entry; advisory once trailing is active

	TrailingActive  bool
	ActivationPrice float64 // Trailing arms when price touches this level
	PeakPrice       float64 // Best price seen since entry (extremum while trailing)
	CallbackRate    float64 // Trailing stop recedes this fraction from PeakPrice

	RiskAmount      float64 // Equity-at-entry risk budget; caps realized P&L
	RiskRewardRatio float64
	CapGains        bool
	MaxHoldCandles  int

	CandlesHeld    int     // Candles processed since entry (timeout exit)
	LastKnownPrice float64 // Close of the most recent candle seen

	// Exchange order IDs for protection management (live mode only)
	StopOrderID     *int64
	TrailingOrderID *int64
}

// IsOpen reports whether the position is in an active state.
func (p *Position) IsOpen() bool {
	return p.State == StateActiveFixedStop || p.State == StateActiveTrailing
}

// UnrealizedPNL computes the gross mark-to-market P&L at the given price.
func (p *Position) UnrealizedPNL(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	frac := price/p.EntryPrice - 1
	if p.Side == Short {
		frac = -frac
	}
	return p.Notional * frac
}
