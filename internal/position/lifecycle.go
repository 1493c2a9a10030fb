// Package position implements the per-trade state machine: entry sizing,
// fixed stop, trailing-stop activation and ratchet, and exit classification.
// The same transitions drive both the historical simulator and the live loop.
package position

import (
	"errors"
	"math"
	"time"

	"neuroTradeBot/internal/domain"
)

// Sizing rejection reasons. A rejected open is not an error condition for the
// caller: it means no trade occurs on this signal.
var (
	ErrZeroStopDistance    = errors.New("stop distance is zero or negative")
	ErrBelowMinNotional    = errors.New("position notional below exchange minimum")
	ErrInsufficientMargin  = errors.New("required margin exceeds available capital")
	ErrNoCapital           = errors.New("no capital available")
	ErrInvalidRiskParams   = errors.New("invalid risk parameters")
	ErrInvalidSignalPrices = errors.New("signal entry price must be positive")
)

// Limits are the exchange-level sizing caps applied at entry.
type Limits struct {
	MaxEffectiveLeverage float64 // Notional capped at equity * this
	MaxNotional          float64 // Absolute notional ceiling
	MinNotional          float64 // Exchange minimum tradable size
}

// DefaultLimits mirrors the exchange the system trades against.
func DefaultLimits() Limits {
	return Limits{
		MaxEffectiveLeverage: 10,
		MaxNotional:          1_000_000,
		MinNotional:          5.0,
	}
}

// OpenRequest carries everything entry sizing needs.
type OpenRequest struct {
	Signal          domain.Signal
	Equity          float64 // Current realized capital
	CommittedMargin float64 // Margin already held by other open positions
	ATR             float64 // Current ATR; > 0 selects the ATR stop variant
}

// StopDistance computes the initial stop distance for an entry. When an ATR
// value is supplied and the parameters carry an ATR multiplier, the distance
// is max(ATR * multiplier, entry * MinStopFraction) - the floor prevents
// near-zero stops in quiet regimes from producing unbounded position size.
// Otherwise the distance is the fixed fraction of the entry price.
func StopDistance(entryPrice, atr float64, p domain.RiskParams) float64 {
	if atr > 0 && p.ATRStopMultiplier > 0 {
		return math.Max(atr*p.ATRStopMultiplier, entryPrice*p.MinStopFraction)
	}
	return entryPrice * p.InitialStopFraction
}

// Open sizes and creates a position from an accepted signal, transitioning it
// straight to the active fixed-stop state. A returned error is a sizing
// rejection: the caller skips the signal and keeps going.
func Open(req OpenRequest, limits Limits) (*domain.Position, error) {
	sig := req.Signal
	p := sig.Risk

	if err := p.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidRiskParams, err)
	}
	if sig.EntryPrice <= 0 {
		return nil, ErrInvalidSignalPrices
	}
	if req.Equity <= 0 {
		return nil, ErrNoCapital
	}

	stopDistance := StopDistance(sig.EntryPrice, req.ATR, p)
	if stopDistance <= 0 {
		return nil, ErrZeroStopDistance
	}
	stopFraction := stopDistance / sig.EntryPrice

	riskAmount := req.Equity * p.RiskPerTrade
	notional := riskAmount / stopFraction

	// Exchange-level caps before the margin check.
	notional = math.Min(notional, req.Equity*limits.MaxEffectiveLeverage)
	if limits.MaxNotional > 0 {
		notional = math.Min(notional, limits.MaxNotional)
	}
	if notional < limits.MinNotional {
		return nil, ErrBelowMinNotional
	}

	margin := notional / float64(p.Leverage)
	if margin > req.Equity || req.CommittedMargin+margin > req.Equity {
		return nil, ErrInsufficientMargin
	}

	var stopLoss, takeProfit, activation float64
	if sig.Side == domain.Long {
		stopLoss = sig.EntryPrice - stopDistance
		takeProfit = sig.EntryPrice + stopDistance*p.RiskRewardRatio
		activation = sig.EntryPrice + stopDistance*p.TrailingActivationRR
	} else {
		stopLoss = sig.EntryPrice + stopDistance
		takeProfit = sig.EntryPrice - stopDistance*p.RiskRewardRatio
		activation = sig.EntryPrice - stopDistance*p.TrailingActivationRR
	}

	return &domain.Position{
		StrategyID:      sig.StrategyID,
		Symbol:          sig.Symbol,
		Side:            sig.Side,
		State:           domain.StateActiveFixedStop,
		EntryPrice:      sig.EntryPrice,
		EntryTime:       sig.Timestamp,
		Notional:        notional,
		MarginUsed:      margin,
		Leverage:        p.Leverage,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		TrailingActive:  false,
		ActivationPrice: activation,
		PeakPrice:       sig.EntryPrice,
		CallbackRate:    p.TrailingCallbackRate,
		RiskAmount:      riskAmount,
		RiskRewardRatio: p.RiskRewardRatio,
		CapGains:        p.CapGains,
		MaxHoldCandles:  p.MaxHoldCandles,
		LastKnownPrice:  sig.EntryPrice,
	}, nil
}

// Exit describes an exit condition produced by a per-candle update.
type Exit struct {
	Price  float64
	Reason domain.ExitReason
}

// Update advances an open position through one candle: trailing activation,
// trailing ratchet, then exit evaluation with the stop checked before the
// fixed target. The fixed take-profit is superseded once trailing is active.
// Returns nil when the position stays open.
func Update(pos *domain.Position, k *domain.Kline) *Exit {
	if !pos.IsOpen() {
		return nil
	}
	pos.LastKnownPrice = k.Close
	pos.CandlesHeld++

	if pos.Side == domain.Long {
		if !pos.TrailingActive && k.High >= pos.ActivationPrice {
			pos.TrailingActive = true
			pos.State = domain.StateActiveTrailing
		}
		if pos.TrailingActive {
			pos.PeakPrice = math.Max(pos.PeakPrice, k.High)
			candidate := pos.PeakPrice * (1 - pos.CallbackRate)
			pos.StopLoss = math.Max(pos.StopLoss, candidate)
		}
		if k.Low <= pos.StopLoss {
			return &Exit{Price: pos.StopLoss, Reason: stopReason(pos)}
		}
		if !pos.TrailingActive && k.High >= pos.TakeProfit {
			return &Exit{Price: pos.TakeProfit, Reason: domain.ExitTakeProfit}
		}
	} else {
		if !pos.TrailingActive && k.Low <= pos.ActivationPrice {
			pos.TrailingActive = true
			pos.State = domain.StateActiveTrailing
		}
		if pos.TrailingActive {
			pos.PeakPrice = math.Min(pos.PeakPrice, k.Low)
			candidate := pos.PeakPrice * (1 + pos.CallbackRate)
			pos.StopLoss = math.Min(pos.StopLoss, candidate)
		}
		if k.High >= pos.StopLoss {
			return &Exit{Price: pos.StopLoss, Reason: stopReason(pos)}
		}
		if !pos.TrailingActive && k.Low <= pos.TakeProfit {
			return &Exit{Price: pos.TakeProfit, Reason: domain.ExitTakeProfit}
		}
	}

	if pos.MaxHoldCandles > 0 && pos.CandlesHeld >= pos.MaxHoldCandles {
		return &Exit{Price: k.Close, Reason: domain.ExitTimeout}
	}
	return nil
}

func stopReason(pos *domain.Position) domain.ExitReason {
	if pos.TrailingActive {
		return domain.ExitTrailingStop
	}
	return domain.ExitStopLoss
}

// Close realizes a position into a ledger entry and transitions it to the
// terminal state. Fees are charged on the notional for both entry and exit
// (taker assumed). Net P&L is capped: the loss never exceeds the risk budget
// fixed at entry, and - when gain capping is enabled - the profit never
// exceeds that budget times the risk-reward ratio. The cap compensates for
// candle-extreme exit prices implying slippage that the modeled stop or
// target would not see in reality.
func Close(pos *domain.Position, exitPrice float64, reason domain.ExitReason, feeRate float64, exitTime time.Time) domain.Trade {
	frac := exitPrice/pos.EntryPrice - 1
	if pos.Side == domain.Short {
		frac = -frac
	}
	grossPNL := pos.Notional * frac
	fees := pos.Notional * feeRate * 2

	netPNL := grossPNL - fees
	netPNL = math.Max(netPNL, -pos.RiskAmount)
	if pos.CapGains {
		netPNL = math.Min(netPNL, pos.RiskAmount*pos.RiskRewardRatio)
	}

	pos.State = domain.StateClosed

	return domain.Trade{
		StrategyID: pos.StrategyID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Notional:   pos.Notional,
		Leverage:   pos.Leverage,
		PNL:        netPNL,
		EntryTime:  pos.EntryTime,
		ExitTime:   exitTime,
		ExitReason: reason,
	}
}
