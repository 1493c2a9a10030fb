// Package risk implements the circuit breaker guarding the live execution
// loop. It is a pure guard: it decides whether trading may proceed and at
// what size, but never touches positions itself. The surrounding loop is
// responsible for acting on a halt.
package risk

import (
	"context"
	"fmt"
	"time"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"
)

// Action is the governor's verdict for one decision cycle.
type Action string

const (
	// ActionOK allows trading at full configured size.
	ActionOK Action = "OK"
	// ActionReduceSize advises halving the per-trade risk for this cycle
	// only. The reduction is advisory and never persisted.
	ActionReduceSize Action = "REDUCE_SIZE"
	// ActionStopAll forbids opening any new position until a manual reset.
	ActionStopAll Action = "STOP_ALL_TRADING"
)

// Thresholds configure the governor. All values are fractions.
type Thresholds struct {
	ReduceDrawdown float64 // Advisory size reduction above this drawdown
	HaltDrawdown   float64 // Sticky trip above this drawdown
	DailyLossLimit float64 // Sticky trip when today's realized loss exceeds peak * this
}

// DefaultThresholds returns the production limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReduceDrawdown: 0.05,
		HaltDrawdown:   0.10,
		DailyLossLimit: 0.03,
	}
}

// Governor evaluates account health against the persisted breaker record.
type Governor struct {
	thresholds Thresholds
	store      ports.StateStore
	logger     ports.Logger
}

// NewGovernor creates a circuit breaker backed by the given state store.
func NewGovernor(thresholds Thresholds, store ports.StateStore, logger ports.Logger) (*Governor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: state store is required", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if thresholds.ReduceDrawdown <= 0 || thresholds.HaltDrawdown <= thresholds.ReduceDrawdown {
		return nil, fmt.Errorf("%w: halt drawdown must exceed reduce drawdown, both positive", ports.ErrConfigurationError)
	}
	if thresholds.DailyLossLimit <= 0 {
		return nil, fmt.Errorf("%w: daily loss limit must be positive", ports.ErrConfigurationError)
	}
	return &Governor{thresholds: thresholds, store: store, logger: logger}, nil
}

// Check evaluates one decision cycle: it folds the current equity and today's
// realized P&L into the persisted record, persists the updated record, and
// returns the action the caller must honor. A previously tripped breaker
// stays tripped regardless of recovery.
func (g *Governor) Check(ctx context.Context, currentEquity, todayPNL float64) (Action, domain.CircuitBreakerStatus, error) {
	op := "risk.Check"

	status, err := g.store.BreakerStatus()
	if err != nil {
		return ActionStopAll, status, fmt.Errorf("reading breaker status: %w", err)
	}

	status.CurrentEquity = currentEquity
	if currentEquity > status.PeakEquity {
		status.PeakEquity = currentEquity
	}
	status.Drawdown = 0
	if status.PeakEquity > 0 {
		status.Drawdown = (status.PeakEquity - currentEquity) / status.PeakEquity
	}
	status.LastUpdate = time.Now().UTC()

	action := ActionOK
	switch {
	case status.Tripped:
		action = ActionStopAll

	case status.Drawdown > g.thresholds.HaltDrawdown:
		status.Tripped = true
		status.TripReason = fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%",
			status.Drawdown*100, g.thresholds.HaltDrawdown*100)
		status.TrippedAt = status.LastUpdate
		action = ActionStopAll

	case status.PeakEquity > 0 && todayPNL < -status.PeakEquity*g.thresholds.DailyLossLimit:
		status.Tripped = true
		status.TripReason = fmt.Sprintf("daily loss %.2f exceeds limit %.2f",
			-todayPNL, status.PeakEquity*g.thresholds.DailyLossLimit)
		status.TrippedAt = status.LastUpdate
		action = ActionStopAll

	case status.Drawdown > g.thresholds.ReduceDrawdown:
		action = ActionReduceSize
	}

	if err := g.store.SaveBreakerStatus(status); err != nil {
		return ActionStopAll, status, fmt.Errorf("saving breaker status: %w", err)
	}

	switch action {
	case ActionStopAll:
		g.logger.Warn(ctx, "circuit breaker active, trading halted", map[string]interface{}{
			"op":       op,
			"reason":   status.TripReason,
			"drawdown": status.Drawdown,
		})
	case ActionReduceSize:
		g.logger.Warn(ctx, "drawdown elevated, reducing position size", map[string]interface{}{
			"op":       op,
			"drawdown": status.Drawdown,
		})
	default:
		g.logger.Debug(ctx, "circuit breaker check passed", map[string]interface{}{
			"op":       op,
			"drawdown": status.Drawdown,
			"equity":   currentEquity,
		})
	}
	return action, status, nil
}

// AdjustRisk applies an action to a per-trade risk fraction for the current
// cycle. The stored configuration is never modified.
func AdjustRisk(action Action, riskPerTrade float64) float64 {
	switch action {
	case ActionReduceSize:
		return riskPerTrade / 2
	case ActionStopAll:
		return 0
	default:
		return riskPerTrade
	}
}

// Reset clears a tripped breaker. Manual operation only: the live loop never
// calls this.
func (g *Governor) Reset(ctx context.Context) error {
	op := "risk.Reset"

	status, err := g.store.BreakerStatus()
	if err != nil {
		return fmt.Errorf("reading breaker status: %w", err)
	}
	if !status.Tripped {
		g.logger.Info(ctx, "circuit breaker is not tripped, nothing to reset", map[string]interface{}{"op": op})
		return nil
	}

	status.Tripped = false
	status.TripReason = ""
	status.ResetAt = time.Now().UTC()
	// Rebase the peak so the old high-water mark does not re-trip
	// immediately after the operator intervenes.
	status.PeakEquity = status.CurrentEquity
	status.Drawdown = 0

	if err := g.store.SaveBreakerStatus(status); err != nil {
		return fmt.Errorf("saving breaker status: %w", err)
	}
	g.logger.Info(ctx, "circuit breaker reset", map[string]interface{}{
		"op":     op,
		"equity": status.CurrentEquity,
	})
	return nil
}
