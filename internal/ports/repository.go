package ports

import (
	"context"

	"neuroTradeBot/internal/domain"
)

// PositionRepository stores live trading positions so an open position
// survives a process restart.
type PositionRepository interface {
	// CreatePosition saves a new position and returns its assigned ID.
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// UpdatePosition modifies an existing position.
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	// FindOpenByStrategy retrieves the open position for a strategy, if any.
	// Returns nil, nil when no open position exists.
	FindOpenByStrategy(ctx context.Context, id domain.StrategyID) (*domain.Position, error)
}

// TradeRepository stores the closed-trade ledger.
type TradeRepository interface {
	// CreateTrade saves a new ledger entry and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByStrategy retrieves the most recent trades for a strategy, up to a limit.
	FindByStrategy(ctx context.Context, id domain.StrategyID, limit int) ([]*domain.Trade, error)
	// SumPNLToday sums the realized P&L of all trades closed today.
	SumPNLToday(ctx context.Context) (float64, error)
}

// StateStore persists small JSON state records (trade locks, circuit-breaker
// status) across process restarts. Writes must be atomic replaces so a crash
// mid-write never leaves a truncated file behind.
type StateStore interface {
	// TradeLock returns the timestamp string of the last traded candle for a
	// strategy, or "" when the strategy has never traded.
	TradeLock(id domain.StrategyID) (string, error)
	// SetTradeLock records the candle a strategy just traded on.
	SetTradeLock(id domain.StrategyID, candleTimestamp string) error
	// BreakerStatus reads the persisted circuit-breaker record. A missing
	// file yields a zero-value status, not an error.
	BreakerStatus() (domain.CircuitBreakerStatus, error)
	// SaveBreakerStatus writes the circuit-breaker record.
	SaveBreakerStatus(status domain.CircuitBreakerStatus) error
}
