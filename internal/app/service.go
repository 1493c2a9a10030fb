// Package app orchestrates live trading: it polls the exchange for fresh
// candles, runs each strategy's signal source, and drives position entry,
// protection, and exit through the exchange gateway while persisting every
// state change.
package app

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"neuroTradeBot/config"
	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/indicators"
	"neuroTradeBot/internal/ports"
	"neuroTradeBot/internal/position"
	"neuroTradeBot/internal/risk"
)

const (
	maxKlineCacheSize = 500 // Candles fetched per poll; bounds indicator lookback
	atrPeriod         = 14
)

// SignalSource produces candidate signals from a kline window. The concrete
// implementation is the model-driven generator; tests substitute a script.
type SignalSource interface {
	Generate(ctx context.Context, klines []*domain.Kline) ([]domain.Signal, error)
}

// StrategyRuntime couples one configured strategy with its signal source and
// its at-most-one open position.
type StrategyRuntime struct {
	Strategy domain.Strategy
	Signals  SignalSource

	position      *domain.Position
	lastProcessed time.Time // OpenTime of the last candle fed to the lifecycle
}

// TradingService runs the live polling loop across all configured strategies.
type TradingService struct {
	cfg       *config.Config
	logger    ports.Logger
	exchange  ports.ExchangeGateway
	posRepo   ports.PositionRepository
	tradeRepo ports.TradeRepository
	state     ports.StateStore
	notifier  ports.Notifier
	governor  *risk.Governor
	runtimes  []*StrategyRuntime
	atr       *indicators.ATR
}

// NewTradingService creates the live trading orchestrator.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeGateway,
	posRepo ports.PositionRepository,
	tradeRepo ports.TradeRepository,
	state ports.StateStore,
	notifier ports.Notifier,
	governor *risk.Governor,
	runtimes []*StrategyRuntime,
) (*TradingService, error) {
	if cfg == nil || logger == nil || exchange == nil || posRepo == nil || tradeRepo == nil ||
		state == nil || notifier == nil || governor == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for TradingService", ports.ErrConfigurationError)
	}
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("%w: at least one strategy runtime is required", ports.ErrConfigurationError)
	}
	for _, rt := range runtimes {
		if rt == nil || rt.Signals == nil {
			return nil, fmt.Errorf("%w: every strategy runtime needs a signal source", ports.ErrConfigurationError)
		}
	}
	return &TradingService{
		cfg:       cfg,
		logger:    logger,
		exchange:  exchange,
		posRepo:   posRepo,
		tradeRepo: tradeRepo,
		state:     state,
		notifier:  notifier,
		governor:  governor,
		runtimes:  runtimes,
		atr:       indicators.NewATR(indicators.ATRConfig{IndicatorConfig: indicators.IndicatorConfig{Period: atrPeriod}}),
	}, nil
}

// Start runs the polling loop until the context is cancelled or a shutdown
// signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer ossignal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	if err := s.initializeStrategies(ctx); err != nil {
		return err
	}

	s.logger.Info(ctx, "Entering polling loop", map[string]interface{}{
		"strategies":   len(s.runtimes),
		"pollInterval": s.cfg.PollInterval.String(),
	})
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Trading Service stopped.")
			return nil
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// initializeStrategies performs per-strategy housekeeping before the first
// poll: leverage, stale order cleanup, and reconciliation of local state with
// the exchange.
func (s *TradingService) initializeStrategies(ctx context.Context) error {
	op := "initializeStrategies"
	for _, rt := range s.runtimes {
		id := rt.Strategy.ID
		fields := map[string]interface{}{"strategy": id.String()}

		if err := s.exchange.SetLeverage(ctx, id.Symbol, rt.Strategy.Risk.Leverage); err != nil {
			s.logger.Error(ctx, err, op+": Failed to set leverage", fields)
			return fmt.Errorf("failed to set leverage for %s: %w", id.String(), err)
		}

		stored, err := s.posRepo.FindOpenByStrategy(ctx, id)
		if err != nil {
			s.logger.Error(ctx, err, op+": Failed to query open position", fields)
			return fmt.Errorf("failed to query open position for %s: %w", id.String(), err)
		}

		exchangePositions, err := s.exchange.GetOpenPositions(ctx, id.Symbol)
		if err != nil {
			s.logger.Error(ctx, err, op+": Failed to query exchange positions", fields)
			return fmt.Errorf("failed to query exchange positions for %s: %w", id.String(), err)
		}

		switch {
		case stored != nil && len(exchangePositions) > 0:
			rt.position = stored
			s.logger.Info(ctx, op+": Resuming open position", map[string]interface{}{
				"strategy":   id.String(),
				"positionID": stored.ID,
				"entryPrice": stored.EntryPrice,
				"stopLoss":   stored.StopLoss,
			})
		case stored != nil:
			// Exchange is flat but the repo disagrees. The stop or trailing
			// order filled while the process was down; settle the record at
			// the last known price.
			s.logger.Warn(ctx, op+": Stored position no longer exists on exchange, settling", map[string]interface{}{
				"strategy":   id.String(),
				"positionID": stored.ID,
			})
			if err := s.settleOffline(ctx, rt, stored); err != nil {
				return err
			}
		case len(exchangePositions) > 0:
			// The exchange holds exposure this process never recorded. Flatten
			// it rather than guess at its parameters.
			s.logger.Warn(ctx, op+": Orphan exchange position found, flattening", fields)
			if err := s.flattenOrphan(ctx, id.Symbol, exchangePositions[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

// settleOffline records a trade for a position whose protective order filled
// while the process was not running. The stop price is the best available
// estimate of the fill.
func (s *TradingService) settleOffline(ctx context.Context, rt *StrategyRuntime, pos *domain.Position) error {
	op := "settleOffline"
	reason := domain.ExitStopLoss
	if pos.TrailingActive {
		reason = domain.ExitTrailingStop
	}
	trade := position.Close(pos, pos.StopLoss, reason, s.cfg.FeeRate, time.Now().UTC())
	if _, err := s.tradeRepo.CreateTrade(ctx, &trade); err != nil {
		s.logger.Error(ctx, err, op+": Failed to record offline settlement", map[string]interface{}{"positionID": pos.ID})
		return fmt.Errorf("failed to record offline settlement: %w", err)
	}
	if err := s.posRepo.UpdatePosition(ctx, pos); err != nil {
		s.logger.Error(ctx, err, op+": Failed to mark position closed", map[string]interface{}{"positionID": pos.ID})
		return fmt.Errorf("failed to mark position closed: %w", err)
	}
	rt.position = nil
	s.logger.Info(ctx, op+": Offline settlement recorded", map[string]interface{}{
		"positionID": pos.ID,
		"pnl":        trade.PNL,
		"reason":     string(reason),
	})
	return nil
}

// flattenOrphan market-closes exchange exposure that has no local record.
func (s *TradingService) flattenOrphan(ctx context.Context, symbol string, orphan *ports.OpenPosition) error {
	op := "flattenOrphan"
	if err := s.exchange.CancelAllOrders(ctx, symbol); err != nil {
		s.logger.Error(ctx, err, op+": Failed to cancel orders for orphan", map[string]interface{}{"symbol": symbol})
	}
	closeSide := domain.OrderSideFor(orphan.Side.Opposite())
	if _, err := s.exchange.OpenMarketPosition(ctx, symbol, closeSide, formatQuantity(orphan.Quantity)); err != nil {
		s.logger.Error(ctx, err, op+": FAILED TO FLATTEN ORPHAN POSITION", map[string]interface{}{"symbol": symbol})
		_ = s.notifier.Notify(ctx, fmt.Sprintf("failed to flatten orphan %s position on %s: %v", orphan.Side, symbol, err))
		return fmt.Errorf("failed to flatten orphan position on %s: %w", symbol, err)
	}
	_ = s.notifier.Notify(ctx, fmt.Sprintf("flattened orphan %s position on %s (qty %.6f)", orphan.Side, symbol, orphan.Quantity))
	return nil
}

// runCycle executes one poll: account health first, then every strategy.
func (s *TradingService) runCycle(ctx context.Context) {
	op := "runCycle"

	equity, err := s.exchange.GetBalance(ctx, s.cfg.QuoteAsset)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to fetch balance, skipping cycle")
		return
	}

	todayPNL, err := s.tradeRepo.SumPNLToday(ctx)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to sum today's P&L, skipping cycle")
		return
	}

	action, status, err := s.governor.Check(ctx, equity, todayPNL)
	if err != nil {
		s.logger.Error(ctx, err, op+": Circuit breaker check failed", map[string]interface{}{"action": string(action)})
	}
	s.logger.Debug(ctx, op+": Cycle health", map[string]interface{}{
		"equity":   equity,
		"todayPNL": todayPNL,
		"drawdown": status.Drawdown,
		"action":   string(action),
	})

	for _, rt := range s.runtimes {
		s.manageStrategy(ctx, rt, equity, action)
	}
}

// manageStrategy advances one strategy by one poll: exit management when a
// position is open, entry evaluation otherwise.
func (s *TradingService) manageStrategy(ctx context.Context, rt *StrategyRuntime, equity float64, action risk.Action) {
	op := "manageStrategy"
	id := rt.Strategy.ID

	klines, err := s.exchange.GetKlines(ctx, id.Symbol, id.Timeframe, maxKlineCacheSize)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to fetch klines", map[string]interface{}{"strategy": id.String()})
		return
	}
	// The last kline may still be forming; act only on closed candles.
	for len(klines) > 0 && !klines[len(klines)-1].IsFinal {
		klines = klines[:len(klines)-1]
	}
	if len(klines) == 0 {
		s.logger.Warn(ctx, op+": No closed candles available", map[string]interface{}{"strategy": id.String()})
		return
	}
	latest := klines[len(klines)-1]

	if rt.position != nil {
		s.managePosition(ctx, rt, latest)
		return
	}

	if action == risk.ActionStopAll {
		s.logger.Debug(ctx, op+": Circuit breaker open, entries suspended", map[string]interface{}{"strategy": id.String()})
		return
	}
	if equity < s.cfg.MinAvailableBalance {
		s.logger.Warn(ctx, op+": Available balance below minimum, entries suspended", map[string]interface{}{
			"strategy": id.String(),
			"equity":   equity,
			"minimum":  s.cfg.MinAvailableBalance,
		})
		return
	}

	s.evaluateEntry(ctx, rt, klines, latest, equity, action)
}

// managePosition runs the lifecycle update for the latest closed candle and
// settles the position when an exit triggers. Candles already processed are
// skipped so a fast poll interval does not double-count holds.
func (s *TradingService) managePosition(ctx context.Context, rt *StrategyRuntime, latest *domain.Kline) {
	op := "managePosition"
	pos := rt.position

	// The entry candle was the signal candle; lifecycle updates start on the
	// next one. Each candle is fed exactly once regardless of poll frequency.
	if !latest.OpenTime.After(pos.EntryTime) || !latest.OpenTime.After(rt.lastProcessed) {
		return
	}
	rt.lastProcessed = latest.OpenTime

	exit := position.Update(pos, latest)

	// Persist the ratchet and hold count even when the position stays open so
	// a restart resumes from the current stop, not the entry stop.
	if err := s.posRepo.UpdatePosition(ctx, pos); err != nil {
		s.logger.Error(ctx, err, op+": Failed to persist position update", map[string]interface{}{"positionID": pos.ID})
	}

	if exit == nil {
		s.logger.Debug(ctx, op+": Position holds", map[string]interface{}{
			"positionID":  pos.ID,
			"stopLoss":    pos.StopLoss,
			"trailing":    pos.TrailingActive,
			"candlesHeld": pos.CandlesHeld,
		})
		return
	}

	s.logger.Info(ctx, op+": Exit condition met", map[string]interface{}{
		"positionID": pos.ID,
		"reason":     string(exit.Reason),
		"exitPrice":  exit.Price,
	})
	if err := s.closePosition(ctx, rt, exit.Price, exit.Reason); err != nil {
		s.logger.Error(ctx, err, op+": Failed to close position", map[string]interface{}{"positionID": pos.ID})
	}
}

// evaluateEntry generates signals for the freshest candle and opens a
// position when one fires and passes the trade lock and sizing checks.
func (s *TradingService) evaluateEntry(ctx context.Context, rt *StrategyRuntime, klines []*domain.Kline, latest *domain.Kline, equity float64, action risk.Action) {
	op := "evaluateEntry"
	id := rt.Strategy.ID
	candleKey := latest.OpenTime.UTC().Format(time.RFC3339)

	lock, err := s.state.TradeLock(id)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to read trade lock, skipping entry", map[string]interface{}{"strategy": id.String()})
		return
	}
	if lock == candleKey {
		s.logger.Debug(ctx, op+": Candle already traded", map[string]interface{}{"strategy": id.String(), "candle": candleKey})
		return
	}

	signals, err := rt.Signals.Generate(ctx, klines)
	if err != nil {
		s.logger.Error(ctx, err, op+": Signal generation failed", map[string]interface{}{"strategy": id.String()})
		return
	}

	// Only a signal on the freshest closed candle is actionable; older ones
	// are history the backtester already saw.
	var actionable *domain.Signal
	for i := range signals {
		if signals[i].Timestamp.Equal(latest.OpenTime) {
			actionable = &signals[i]
			break
		}
	}
	if actionable == nil {
		return
	}

	sig := *actionable
	sig.Risk.RiskPerTrade = risk.AdjustRisk(action, sig.Risk.RiskPerTrade)
	if sig.Risk.RiskPerTrade <= 0 {
		s.logger.Warn(ctx, op+": Risk reduced to zero, skipping signal", map[string]interface{}{"strategy": id.String()})
		return
	}

	atrVal := 0.0
	if len(klines) > atrPeriod {
		if v, err := s.atr.Calculate(ctx, klines); err == nil {
			atrVal = v
		}
	}

	pos, err := position.Open(position.OpenRequest{
		Signal:          sig,
		Equity:          equity,
		CommittedMargin: s.committedMargin(),
		ATR:             atrVal,
	}, position.DefaultLimits())
	if err != nil {
		// Sizing rejections are routine; the signal simply produces no trade.
		s.logger.Info(ctx, op+": Signal rejected at sizing", map[string]interface{}{
			"strategy": id.String(),
			"reason":   err.Error(),
		})
		return
	}

	if err := s.openPosition(ctx, rt, pos, candleKey); err != nil {
		s.logger.Error(ctx, err, op+": Failed to open position", map[string]interface{}{"strategy": id.String()})
	}
}

// committedMargin sums the margin held by every open position across all
// strategies.
func (s *TradingService) committedMargin() float64 {
	var total float64
	for _, rt := range s.runtimes {
		if rt.position != nil {
			total += rt.position.MarginUsed
		}
	}
	return total
}

// openPosition executes the entry on the exchange: market entry, then the
// protective stop, then the trailing stop. A protection failure triggers an
// immediate defensive close; an unprotected position must never be left open.
func (s *TradingService) openPosition(ctx context.Context, rt *StrategyRuntime, pos *domain.Position, candleKey string) error {
	op := "openPosition"
	id := rt.Strategy.ID
	quantityStr := formatQuantity(pos.Notional / pos.EntryPrice)
	entrySide := domain.OrderSideFor(pos.Side)
	protectSide := domain.OrderSideFor(pos.Side.Opposite())

	s.logger.Info(ctx, op+": Placing entry market order", map[string]interface{}{
		"strategy":   id.String(),
		"side":       string(entrySide),
		"quantity":   quantityStr,
		"entryPrice": pos.EntryPrice,
		"stopLoss":   pos.StopLoss,
	})
	entryOrder, err := s.exchange.OpenMarketPosition(ctx, id.Symbol, entrySide, quantityStr)
	if err != nil {
		return fmt.Errorf("entry market order failed: %w", err)
	}
	if entryOrder.AvgPrice > 0 {
		pos.EntryPrice = entryOrder.AvgPrice
		pos.LastKnownPrice = entryOrder.AvgPrice
	} else {
		s.logger.Warn(ctx, op+": Entry order AvgPrice is 0, keeping signal price", map[string]interface{}{"orderID": entryOrder.OrderID})
	}

	stopOrder, err := s.exchange.PlaceStopOrder(ctx, id.Symbol, protectSide, quantityStr, formatPrice(pos.StopLoss))
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to place stop order, emergency closing")
		s.emergencyClose(ctx, id.Symbol, protectSide, quantityStr, err)
		return fmt.Errorf("stop order failed after entry: %w (emergency close attempted)", err)
	}
	stopID := stopOrder.OrderID
	pos.StopOrderID = &stopID

	// The fixed stop is the hard protection; a missing trailing stop only
	// costs upside management, so its failure downgrades rather than aborts.
	trailingOrder, err := s.exchange.PlaceTrailingStop(ctx, id.Symbol, protectSide, quantityStr, formatPrice(pos.ActivationPrice), pos.CallbackRate)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to place trailing stop, continuing with fixed stop only")
		_ = s.notifier.Notify(ctx, fmt.Sprintf("trailing stop rejected on %s, position protected by fixed stop only: %v", id.Symbol, err))
	} else {
		trailingID := trailingOrder.OrderID
		pos.TrailingOrderID = &trailingID
	}

	posID, err := s.posRepo.CreatePosition(ctx, pos)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to persist position, emergency closing")
		if cancelErr := s.exchange.CancelAllOrders(ctx, id.Symbol); cancelErr != nil {
			s.logger.Error(ctx, cancelErr, op+": Failed to cancel protection during cleanup")
		}
		s.emergencyClose(ctx, id.Symbol, protectSide, quantityStr, err)
		return fmt.Errorf("failed to persist position after placing orders: %w (emergency close attempted)", err)
	}
	pos.ID = posID

	if err := s.state.SetTradeLock(id, candleKey); err != nil {
		s.logger.Error(ctx, err, op+": Failed to set trade lock", map[string]interface{}{"strategy": id.String(), "candle": candleKey})
	}

	rt.position = pos
	s.logger.Info(ctx, op+": Position opened", map[string]interface{}{
		"strategy":   id.String(),
		"positionID": pos.ID,
		"entryPrice": pos.EntryPrice,
		"notional":   pos.Notional,
		"margin":     pos.MarginUsed,
	})
	return nil
}

// closePosition settles an open position: cancels protection, market-closes
// the exposure, and records the ledger entry.
func (s *TradingService) closePosition(ctx context.Context, rt *StrategyRuntime, exitPrice float64, reason domain.ExitReason) error {
	op := "closePosition"
	pos := rt.position
	if pos == nil {
		return fmt.Errorf("no open position to close")
	}
	id := rt.Strategy.ID
	quantityStr := formatQuantity(pos.Notional / pos.EntryPrice)
	closeSide := domain.OrderSideFor(pos.Side.Opposite())

	if err := s.exchange.CancelAllOrders(ctx, id.Symbol); err != nil {
		s.logger.Error(ctx, err, op+": Failed to cancel protective orders", map[string]interface{}{"positionID": pos.ID})
	}

	closeOrder, err := s.exchange.OpenMarketPosition(ctx, id.Symbol, closeSide, quantityStr)
	if err != nil {
		// The position stays open; protection was just cancelled, so this is
		// urgent enough to alert the operator.
		_ = s.notifier.Notify(ctx, fmt.Sprintf("failed to close %s position %d on %s: %v", pos.Side, pos.ID, id.Symbol, err))
		return fmt.Errorf("failed to place closing market order for position %d: %w", pos.ID, err)
	}
	actualExit := closeOrder.AvgPrice
	if actualExit == 0 {
		s.logger.Warn(ctx, op+": Close order AvgPrice is 0, using modeled exit price", map[string]interface{}{"orderID": closeOrder.OrderID, "fallbackPrice": exitPrice})
		actualExit = exitPrice
	}

	trade := position.Close(pos, actualExit, reason, s.cfg.FeeRate, time.Now().UTC())
	if _, err := s.tradeRepo.CreateTrade(ctx, &trade); err != nil {
		s.logger.Error(ctx, err, op+": Failed to record trade", map[string]interface{}{"positionID": pos.ID})
		return fmt.Errorf("failed to record trade for position %d: %w", pos.ID, err)
	}
	if err := s.posRepo.UpdatePosition(ctx, pos); err != nil {
		s.logger.Error(ctx, err, op+": Failed to mark position closed", map[string]interface{}{"positionID": pos.ID})
		return fmt.Errorf("failed to mark position %d closed: %w", pos.ID, err)
	}

	rt.position = nil
	s.logger.Info(ctx, op+": Position closed", map[string]interface{}{
		"positionID": pos.ID,
		"exitPrice":  actualExit,
		"pnl":        trade.PNL,
		"reason":     string(reason),
	})
	return nil
}

// emergencyClose market-closes exposure whose protection could not be placed.
// It never updates the repository; the caller decides how to record the
// failure.
func (s *TradingService) emergencyClose(ctx context.Context, symbol string, closeSide domain.OrderSide, quantityStr string, cause error) {
	op := "emergencyClose"
	s.logger.Warn(ctx, op+": Placing emergency closing order", map[string]interface{}{
		"symbol":   symbol,
		"side":     string(closeSide),
		"quantity": quantityStr,
	})
	if _, err := s.exchange.OpenMarketPosition(ctx, symbol, closeSide, quantityStr); err != nil {
		s.logger.Error(ctx, err, op+": FAILED TO PLACE EMERGENCY CLOSE ORDER")
		_ = s.notifier.Notify(ctx, fmt.Sprintf("UNPROTECTED POSITION on %s: protection failed (%v) and emergency close failed (%v), manual intervention required", symbol, cause, err))
		return
	}
	_ = s.notifier.Notify(ctx, fmt.Sprintf("emergency closed position on %s after protection failure: %v", symbol, cause))
	s.logger.Info(ctx, op+": Emergency close order placed")
}

// formatPrice formats a price for the exchange API.
// TODO: derive precision from the symbol's exchange filters instead of a
// fixed two decimals.
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}

// formatQuantity formats a contract quantity for the exchange API.
func formatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', 3, 64)
}
