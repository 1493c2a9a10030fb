package domain

import "time"

// Signal is one candidate trade opportunity, created once per (strategy,
// candle) by the signal source. It is immutable and consumed exactly once by
// the portfolio engine, or dropped if a position is already open for the
// strategy. It carries everything needed to size and manage the resulting
// position so the engine never has to reach back into strategy configuration.
type Signal struct {
	Timestamp  time.Time
	StrategyID StrategyID
	Symbol     string
	Side       Side
	EntryPrice float64
	Risk       RiskParams
}
