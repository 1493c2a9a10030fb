// Package portfolio implements the chronological multi-strategy simulator.
// It replays a merged timeline of candles and pre-filtered signals, owns the
// capital, enforces at most one open position per strategy, and produces an
// equity curve plus a trade ledger. Two runs over identical inputs produce
// identical results.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"
	"neuroTradeBot/internal/position"
)

// Config holds the run-wide simulation parameters.
type Config struct {
	StartCapital float64
	FeeRate      float64 // Taker fee per side, as a fraction (e.g. 0.0005)
	Limits       position.Limits
}

// Input is one simulation's data set. Candles must be sorted by open time per
// strategy. Signals may arrive grouped per strategy in any global order; the
// engine merges them onto one timestamp-ordered timeline before replay,
// keeping same-timestamp signals in their incoming order.
type Input struct {
	Candles map[domain.StrategyID][]*domain.Kline
	Signals []domain.Signal
}

// Engine runs simulations. It holds no per-run state and is safe to reuse
// across runs sequentially; a single run is strictly single-threaded because
// sizing depends on equity, which depends on every prior close.
type Engine struct {
	cfg    Config
	logger ports.Logger
}

// NewEngine creates a simulation engine.
func NewEngine(cfg Config, logger ports.Logger) (*Engine, error) {
	if cfg.StartCapital <= 0 {
		return nil, fmt.Errorf("start capital must be positive, got %v", cfg.StartCapital)
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return nil, fmt.Errorf("fee rate must be a fraction in [0,1), got %v", cfg.FeeRate)
	}
	if cfg.Limits == (position.Limits{}) {
		cfg.Limits = position.DefaultLimits()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// openSlot tracks one open position together with its insertion order, so the
// per-timestamp update pass visits positions deterministically.
type openSlot struct {
	id  domain.StrategyID
	pos *domain.Position
}

// Run replays the merged timeline and returns the completed result. An empty
// input is not an error: it yields a valid zero-trade report.
func (e *Engine) Run(ctx context.Context, input Input) (*Result, error) {
	op := "portfolio.Run"

	candlesAt := make(map[domain.StrategyID]map[int64]*domain.Kline, len(input.Candles))
	timelineSet := make(map[int64]struct{})
	for id, klines := range input.Candles {
		byTime := make(map[int64]*domain.Kline, len(klines))
		for _, k := range klines {
			ts := k.OpenTime.UnixMilli()
			byTime[ts] = k
			timelineSet[ts] = struct{}{}
		}
		candlesAt[id] = byTime
	}
	timeline := make([]int64, 0, len(timelineSet))
	for ts := range timelineSet {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i] < timeline[j] })

	// The signal cursor below advances monotonically, so the stream must be
	// globally timestamp-ordered even when callers hand over per-strategy
	// batches. The stable sort keeps same-timestamp signals in their incoming
	// order, which the order-dependent margin checks rely on.
	signals := make([]domain.Signal, len(input.Signals))
	copy(signals, input.Signals)
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Timestamp.Before(signals[j].Timestamp)
	})

	result := &Result{
		StartCapital: e.cfg.StartCapital,
		EquityCurve:  make([]domain.EquityPoint, 0, len(timeline)),
	}

	equity := e.cfg.StartCapital
	peak := equity
	maxDrawdown := 0.0
	var open []openSlot
	sigIdx := 0

	closePosition := func(slot openSlot, price float64, reason domain.ExitReason, at time.Time) {
		trade := position.Close(slot.pos, price, reason, e.cfg.FeeRate, at)
		equity += trade.PNL
		result.Trades = append(result.Trades, trade)
		e.logDebug(ctx, op, "position closed", map[string]interface{}{
			"strategy": slot.id.String(),
			"reason":   string(reason),
			"pnl":      trade.PNL,
			"equity":   equity,
		})
	}

	for _, ts := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation cancelled: %w", err)
		}
		now := time.UnixMilli(ts).UTC()

		// Update open positions first. A symbol with no candle at this
		// timestamp is skipped this tick, not closed.
		survivors := open[:0]
		for _, slot := range open {
			k, ok := candlesAt[slot.id][ts]
			if !ok {
				survivors = append(survivors, slot)
				continue
			}
			if exit := position.Update(slot.pos, k); exit != nil {
				closePosition(slot, exit.Price, exit.Reason, k.CloseTime)
				continue
			}
			survivors = append(survivors, slot)
		}
		open = survivors

		// Then admit this timestamp's signals, in discovery order. Margin
		// checks are order-dependent, so the order is part of the contract.
		// Signals with no matching candle timestamp are dropped.
		for sigIdx < len(signals) && signals[sigIdx].Timestamp.UnixMilli() < ts {
			sigIdx++
		}
		for sigIdx < len(signals) && signals[sigIdx].Timestamp.UnixMilli() == ts {
			sig := signals[sigIdx]
			sigIdx++

			if hasOpen(open, sig.StrategyID) {
				continue
			}
			if equity <= 0 {
				continue
			}
			committed := 0.0
			for _, slot := range open {
				committed += slot.pos.MarginUsed
			}
			pos, err := position.Open(position.OpenRequest{
				Signal:          sig,
				Equity:          equity,
				CommittedMargin: committed,
			}, e.cfg.Limits)
			if err != nil {
				e.logDebug(ctx, op, "signal skipped", map[string]interface{}{
					"strategy": sig.StrategyID.String(),
					"reason":   err.Error(),
				})
				continue
			}
			open = append(open, openSlot{id: sig.StrategyID, pos: pos})
		}

		// Mark to market for the drawdown track. Unrealized P&L never feeds
		// back into realized equity.
		markToMarket := equity
		for _, slot := range open {
			markToMarket += slot.pos.UnrealizedPNL(slot.pos.LastKnownPrice)
		}
		if markToMarket > peak {
			peak = markToMarket
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - markToMarket) / peak
		}
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
		result.EquityCurve = append(result.EquityCurve, domain.EquityPoint{
			Timestamp: now,
			Equity:    markToMarket,
			Drawdown:  drawdown,
		})

		if markToMarket <= 0 {
			result.Liquidated = true
			result.LiquidationTime = now
			e.logWarn(ctx, op, "account liquidated, halting simulation", map[string]interface{}{
				"timestamp": now.Format(time.RFC3339),
				"equity":    markToMarket,
			})
			break
		}
	}

	// Positions that survive the data close at their last seen price, with
	// the same fee and capping rules as any other exit.
	if !result.Liquidated && len(open) > 0 {
		at := time.Time{}
		if n := len(timeline); n > 0 {
			at = time.UnixMilli(timeline[len(timeline)-1]).UTC()
		}
		for _, slot := range open {
			closePosition(slot, slot.pos.LastKnownPrice, domain.ExitEndOfData, at)
		}
		open = nil
	}

	result.FinalEquity = equity
	result.MaxDrawdownPct = maxDrawdown
	summarize(result)

	e.logInfo(ctx, op, "simulation complete", map[string]interface{}{
		"trades":       len(result.Trades),
		"final_equity": result.FinalEquity,
		"max_drawdown": result.MaxDrawdownPct,
		"liquidated":   result.Liquidated,
	})
	return result, nil
}

func hasOpen(open []openSlot, id domain.StrategyID) bool {
	for _, slot := range open {
		if slot.id == id {
			return true
		}
	}
	return false
}

func (e *Engine) logDebug(ctx context.Context, op, msg string, fields map[string]interface{}) {
	if e.logger != nil {
		fields["op"] = op
		e.logger.Debug(ctx, msg, fields)
	}
}

func (e *Engine) logInfo(ctx context.Context, op, msg string, fields map[string]interface{}) {
	if e.logger != nil {
		fields["op"] = op
		e.logger.Info(ctx, msg, fields)
	}
}

func (e *Engine) logWarn(ctx context.Context, op, msg string, fields map[string]interface{}) {
	if e.logger != nil {
		fields["op"] = op
		e.logger.Warn(ctx, msg, fields)
	}
}
