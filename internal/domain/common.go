package domain

// Side is the direction of a trade.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Opposite returns the closing direction for a side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderSideFor maps a trade direction to the exchange order side that opens it.
func OrderSideFor(s Side) OrderSide {
	if s == Long {
		return Buy
	}
	return Sell
}

// PositionState tracks where a position is in its lifecycle.
// Opening and Closed are instantaneous; a position is "open" while in
// ActiveFixedStop or ActiveTrailing.
type PositionState string

const (
	StateOpening         PositionState = "opening"
	StateActiveFixedStop PositionState = "active_fixed_stop"
	StateActiveTrailing  PositionState = "active_trailing"
	StateClosed          PositionState = "closed"
)

// ExitReason indicates why a position was closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitTimeout      ExitReason = "timeout"
	ExitEndOfData    ExitReason = "end_of_data"
	ExitManual       ExitReason = "manual"
	ExitProtection   ExitReason = "protection_failure"
)

// TrendDirection is the output of the trend filter: +1 for an up-trend,
// -1 for a down-trend, 0 when no direction is established yet.
type TrendDirection int

const (
	TrendUp   TrendDirection = 1
	TrendNone TrendDirection = 0
	TrendDown TrendDirection = -1
)
