package domain

import "time"

// Trade is a closed-position ledger entry. Immutable once written; used only
// for aggregate reporting and persistence.
type Trade struct {
	ID         int64 // Assigned by the repository when persisted
	StrategyID StrategyID
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Notional   float64 // Position exposure at entry (margin * leverage)
	Leverage   int
	PNL        float64 // Net realized P&L, fees included, capped
	EntryTime  time.Time
	ExitTime   time.Time
	ExitReason ExitReason
}

// EquityPoint is one sample of the portfolio equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64 // Mark-to-market equity (realized + unrealized)
	Drawdown  float64 // Fractional decline from the running peak
}
