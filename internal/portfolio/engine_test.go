package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroTradeBot/internal/domain"
)

var baseTime = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type bar struct {
	open, high, low, close float64
}

func klineSeries(id domain.StrategyID, bars []bar) []*domain.Kline {
	klines := make([]*domain.Kline, len(bars))
	for i, b := range bars {
		open := baseTime.Add(time.Duration(i) * time.Hour)
		klines[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour),
			Symbol:    id.Symbol,
			Interval:  id.Timeframe,
			Open:      b.open,
			High:      b.high,
			Low:       b.low,
			Close:     b.close,
			Volume:    1000,
			IsFinal:   true,
		}
	}
	return klines
}

func signalAt(id domain.StrategyID, candleIdx int, side domain.Side, entry float64, p domain.RiskParams) domain.Signal {
	return domain.Signal{
		Timestamp:  baseTime.Add(time.Duration(candleIdx) * time.Hour),
		StrategyID: id,
		Symbol:     id.Symbol,
		Side:       side,
		EntryPrice: entry,
		Risk:       p,
	}
}

func riskParams() domain.RiskParams {
	return domain.RiskParams{
		RiskPerTrade:         0.01,
		RiskRewardRatio:      2.0,
		InitialStopFraction:  0.02,
		MinStopFraction:      0.005,
		Leverage:             10,
		TrailingActivationRR: 3.0, // activation beyond the fixed target
		TrailingCallbackRate: 0.01,
		CapGains:             true,
	}
}

func newTestEngine(t *testing.T, startCapital, feeRate float64) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{StartCapital: startCapital, FeeRate: feeRate}, nil)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(Config{StartCapital: 0}, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{StartCapital: 1000, FeeRate: 1.5}, nil)
	assert.Error(t, err)
}

func TestRun_EmptyInputYieldsZeroTradeReport(t *testing.T) {
	engine := newTestEngine(t, 1000, 0.0005)

	result, err := engine.Run(context.Background(), Input{})
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Empty(t, result.EquityCurve)
	assert.InDelta(t, 1000.0, result.FinalEquity, 1e-9)
	assert.Zero(t, result.TotalPNLPct)
	assert.False(t, result.Liquidated)
}

func TestRun_LongTakeProfit(t *testing.T) {
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	// Entry at 100 on the first candle; the second candle tags the target at
	// 104 without reaching the trailing activation at 106.
	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			id: klineSeries(id, []bar{
				{100, 100.5, 99.5, 100},
				{100, 104.5, 99.5, 104},
			}),
		},
		Signals: []domain.Signal{signalAt(id, 0, domain.Long, 100, riskParams())},
	}

	result, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, domain.ExitTakeProfit, trade.ExitReason)
	assert.InDelta(t, 104, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 500, trade.Notional, 1e-9)
	// gross 500 * 4% = 20, exactly at the risk * RR cap
	assert.InDelta(t, 20, trade.PNL, 1e-9)
	assert.InDelta(t, 1020, result.FinalEquity, 1e-9)
	assert.InDelta(t, 1.0, result.WinRate, 1e-9)

	stats := result.PerStrategy[id]
	assert.Equal(t, 1, stats.Trades)
	assert.Equal(t, 1, stats.Wins)
}

func TestRun_Deterministic(t *testing.T) {
	idA := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	idB := domain.StrategyID{Symbol: "BTCUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0.0005)

	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			idA: klineSeries(idA, []bar{
				{100, 101, 99, 100},
				{100, 105, 98, 103},
				{103, 106, 97, 99},
				{99, 100, 95, 96},
			}),
			idB: klineSeries(idB, []bar{
				{50, 51, 49, 50},
				{50, 52, 48, 51},
				{51, 53, 47, 48},
				{48, 49, 45, 46},
			}),
		},
		Signals: []domain.Signal{
			signalAt(idA, 0, domain.Long, 100, riskParams()),
			signalAt(idB, 0, domain.Short, 50, riskParams()),
			signalAt(idA, 2, domain.Long, 103, riskParams()),
		},
	}

	first, err := engine.Run(context.Background(), input)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
	assert.Equal(t, first.FinalEquity, second.FinalEquity)
}

func TestRun_SignalsGroupedPerStrategy(t *testing.T) {
	idA := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	idB := domain.StrategyID{Symbol: "BTCUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	// Each strategy enters on candle 0, take-profits on candle 1, re-enters on
	// candle 2, and carries the second position into end of data.
	candles := map[domain.StrategyID][]*domain.Kline{
		idA: klineSeries(idA, []bar{
			{100, 100.5, 99.5, 100},
			{100, 104.5, 99.5, 104},
			{104, 104.5, 103.5, 104},
			{104, 104.5, 103.5, 104},
		}),
		idB: klineSeries(idB, []bar{
			{50, 50.5, 49.5, 50},
			{50, 52.5, 49.5, 52},
			{52, 52.5, 51.5, 52},
			{52, 52.5, 51.5, 52},
		}),
	}
	// Concatenated per strategy: B's signals arrive after A's later ones.
	grouped := []domain.Signal{
		signalAt(idA, 0, domain.Long, 100, riskParams()),
		signalAt(idA, 2, domain.Long, 104, riskParams()),
		signalAt(idB, 0, domain.Long, 50, riskParams()),
		signalAt(idB, 2, domain.Long, 52, riskParams()),
	}
	merged := []domain.Signal{grouped[0], grouped[2], grouped[1], grouped[3]}

	fromGrouped, err := engine.Run(context.Background(), Input{Candles: candles, Signals: grouped})
	require.NoError(t, err)
	fromMerged, err := engine.Run(context.Background(), Input{Candles: candles, Signals: merged})
	require.NoError(t, err)

	// All four signals replay regardless of the incoming order.
	require.Len(t, fromGrouped.Trades, 4)
	assert.Equal(t, 2, fromGrouped.PerStrategy[idA].Trades)
	assert.Equal(t, 2, fromGrouped.PerStrategy[idB].Trades)
	assert.Equal(t, fromMerged.Trades, fromGrouped.Trades)
	assert.Equal(t, fromMerged.FinalEquity, fromGrouped.FinalEquity)
}

func TestRun_DoesNotMutateCallerSignals(t *testing.T) {
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	signals := []domain.Signal{
		signalAt(id, 1, domain.Long, 100, riskParams()),
		signalAt(id, 0, domain.Long, 100, riskParams()),
	}
	want := []domain.Signal{signals[0], signals[1]}

	_, err := engine.Run(context.Background(), Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			id: klineSeries(id, []bar{{100, 100.5, 99.5, 100}, {100, 100.5, 99.5, 100}}),
		},
		Signals: signals,
	})
	require.NoError(t, err)
	assert.Equal(t, want, signals)
}

func TestRun_AtMostOnePositionPerStrategy(t *testing.T) {
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	// Quiet candles keep the first position open; every later signal for the
	// same strategy must be dropped.
	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			id: klineSeries(id, []bar{
				{100, 100.5, 99.5, 100},
				{100, 100.5, 99.5, 100},
				{100, 100.5, 99.5, 100},
			}),
		},
		Signals: []domain.Signal{
			signalAt(id, 0, domain.Long, 100, riskParams()),
			signalAt(id, 1, domain.Long, 100, riskParams()),
			signalAt(id, 2, domain.Short, 100, riskParams()),
		},
	}

	result, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	// Only the first signal opened; it survives to end of data.
	require.Len(t, result.Trades, 1)
	assert.Equal(t, domain.ExitEndOfData, result.Trades[0].ExitReason)
	assert.Equal(t, domain.Long, result.Trades[0].Side)
}

func TestRun_MarginCheckIsOrderDependent(t *testing.T) {
	idA := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	idB := domain.StrategyID{Symbol: "BTCUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	// Each position needs 600 margin; only the first same-timestamp signal
	// fits into 1000 of capital.
	p := riskParams()
	p.RiskPerTrade = 0.06
	p.InitialStopFraction = 0.01

	bars := []bar{{100, 100.5, 99.5, 100}, {100, 100.5, 99.5, 100}}
	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			idA: klineSeries(idA, bars),
			idB: klineSeries(idB, bars),
		},
		Signals: []domain.Signal{
			signalAt(idA, 0, domain.Long, 100, p),
			signalAt(idB, 0, domain.Long, 100, p),
		},
	}

	result, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, idA, result.Trades[0].StrategyID)
}

func TestRun_RejectedOpenIsSilent(t *testing.T) {
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 6, 0) // below minimum notional once sized

	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			id: klineSeries(id, []bar{{100, 100.5, 99.5, 100}}),
		},
		Signals: []domain.Signal{signalAt(id, 0, domain.Long, 100, riskParams())},
	}

	result, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.InDelta(t, 6.0, result.FinalEquity, 1e-9)
	assert.Len(t, result.EquityCurve, 1)
}

func TestRun_LiquidationHaltsProcessing(t *testing.T) {
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	// Full capital at risk: the stop realizes the entire balance, equity
	// reaches zero, and everything after the liquidation candle is ignored.
	p := riskParams()
	p.RiskPerTrade = 1.0
	p.InitialStopFraction = 0.1

	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			id: klineSeries(id, []bar{
				{100, 100.5, 99.5, 100},
				{95, 95, 85, 86}, // gaps through the stop at 90
				{86, 87, 85, 86},
			}),
		},
		Signals: []domain.Signal{
			signalAt(id, 0, domain.Long, 100, p),
			signalAt(id, 2, domain.Long, 86, p),
		},
	}

	result, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, result.Liquidated)
	assert.Equal(t, baseTime.Add(time.Hour), result.LiquidationTime)
	require.Len(t, result.Trades, 1)
	assert.InDelta(t, -1000, result.Trades[0].PNL, 1e-9)
	// Curve stops at the liquidation timestamp.
	assert.Len(t, result.EquityCurve, 2)
	assert.InDelta(t, 0, result.FinalEquity, 1e-9)
}

func TestRun_EndOfDataClose(t *testing.T) {
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			id: klineSeries(id, []bar{
				{100, 100.5, 99.5, 100},
				{100, 101.5, 99.9, 101},
			}),
		},
		Signals: []domain.Signal{signalAt(id, 0, domain.Long, 100, riskParams())},
	}

	result, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, domain.ExitEndOfData, trade.ExitReason)
	assert.InDelta(t, 101, trade.ExitPrice, 1e-9)
	// gross 500 * 1% = 5
	assert.InDelta(t, 5, trade.PNL, 1e-9)
	assert.InDelta(t, 1005, result.FinalEquity, 1e-9)
}

func TestRun_CapitalConservation(t *testing.T) {
	idA := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	idB := domain.StrategyID{Symbol: "SOLUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0.0005)

	input := Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			idA: klineSeries(idA, []bar{
				{100, 101, 99, 100},
				{100, 105, 99, 104},
				{104, 107, 103, 106},
				{106, 108, 102, 103},
			}),
			idB: klineSeries(idB, []bar{
				{200, 202, 198, 200},
				{200, 204, 192, 195},
				{195, 198, 190, 191},
				{191, 196, 189, 195},
			}),
		},
		Signals: []domain.Signal{
			signalAt(idA, 0, domain.Long, 100, riskParams()),
			signalAt(idB, 0, domain.Short, 200, riskParams()),
			signalAt(idA, 2, domain.Long, 106, riskParams()),
		},
	}

	result, err := engine.Run(context.Background(), input)
	require.NoError(t, err)

	total := 0.0
	for _, tr := range result.Trades {
		total += tr.PNL
		// 1% of equity at entry; realized equity never exceeds 1010 here.
		assert.GreaterOrEqual(t, tr.PNL, -10.1, "loss bound breached for %s", tr.StrategyID)
	}
	assert.InDelta(t, 1000+total, result.FinalEquity, 1e-9)
}

func TestRun_Cancellation(t *testing.T) {
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	engine := newTestEngine(t, 1000, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, Input{
		Candles: map[domain.StrategyID][]*domain.Kline{
			id: klineSeries(id, []bar{{100, 101, 99, 100}}),
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
