package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroTradeBot/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: nopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testPosition() *domain.Position {
	return &domain.Position{
		StrategyID:      domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"},
		Symbol:          "ETHUSDT",
		Side:            domain.Long,
		State:           domain.StateActiveFixedStop,
		EntryPrice:      100,
		EntryTime:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Notional:        500,
		MarginUsed:      50,
		Leverage:        10,
		StopLoss:        98,
		TakeProfit:      104,
		ActivationPrice: 102,
		PeakPrice:       100,
		CallbackRate:    0.01,
		RiskAmount:      10,
		RiskRewardRatio: 2,
		CapGains:        true,
		MaxHoldCandles:  48,
		LastKnownPrice:  100,
	}
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestPosition_CreateFindUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}

	// Flat strategy yields nil, nil.
	found, err := repo.FindOpenByStrategy(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, found)

	pos := testPosition()
	posID, err := repo.CreatePosition(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, posID, pos.ID)

	found, err = repo.FindOpenByStrategy(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, pos.StrategyID, found.StrategyID)
	assert.Equal(t, domain.Long, found.Side)
	assert.Equal(t, domain.StateActiveFixedStop, found.State)
	assert.InDelta(t, 500, found.Notional, 1e-9)
	assert.True(t, found.CapGains)
	assert.Nil(t, found.StopOrderID)
	assert.True(t, found.EntryTime.Equal(pos.EntryTime))

	// Trailing activation and protection orders round-trip.
	stopID := int64(9001)
	found.State = domain.StateActiveTrailing
	found.TrailingActive = true
	found.PeakPrice = 103
	found.StopLoss = 101.97
	found.CandlesHeld = 3
	found.LastKnownPrice = 102.8
	found.StopOrderID = &stopID
	require.NoError(t, repo.UpdatePosition(ctx, found))

	updated, err := repo.FindOpenByStrategy(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, domain.StateActiveTrailing, updated.State)
	assert.True(t, updated.TrailingActive)
	assert.InDelta(t, 101.97, updated.StopLoss, 1e-9)
	require.NotNil(t, updated.StopOrderID)
	assert.Equal(t, stopID, *updated.StopOrderID)

	// A closed position no longer shows up as open.
	updated.State = domain.StateClosed
	require.NoError(t, repo.UpdatePosition(ctx, updated))
	found, err = repo.FindOpenByStrategy(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestUpdatePosition_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	pos := testPosition()
	pos.ID = 424242

	err := repo.UpdatePosition(context.Background(), pos)
	assert.Error(t, err)
}

func TestTrade_CreateAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}

	entry := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, pnl := range []float64{19.5, -10, 7.25} {
		trade := &domain.Trade{
			StrategyID: id,
			Symbol:     id.Symbol,
			Side:       domain.Long,
			EntryPrice: 100,
			ExitPrice:  104,
			Notional:   500,
			Leverage:   10,
			PNL:        pnl,
			EntryTime:  entry.Add(time.Duration(i) * time.Hour),
			ExitTime:   entry.Add(time.Duration(i+1) * time.Hour),
			ExitReason: domain.ExitTakeProfit,
		}
		_, err := repo.CreateTrade(ctx, trade)
		require.NoError(t, err)
	}
	// A trade for another strategy must not leak into the query.
	other := &domain.Trade{
		StrategyID: domain.StrategyID{Symbol: "BTCUSDT", Timeframe: "4h"},
		Symbol:     "BTCUSDT",
		Side:       domain.Short,
		EntryPrice: 50000,
		ExitPrice:  49000,
		Notional:   1000,
		Leverage:   5,
		PNL:        20,
		EntryTime:  entry,
		ExitTime:   entry.Add(time.Hour),
		ExitReason: domain.ExitTrailingStop,
	}
	_, err := repo.CreateTrade(ctx, other)
	require.NoError(t, err)

	trades, err := repo.FindByStrategy(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	// Most recent exit first.
	assert.InDelta(t, 7.25, trades[0].PNL, 1e-9)
	assert.Equal(t, domain.ExitTakeProfit, trades[0].ExitReason)

	limited, err := repo.FindByStrategy(ctx, id, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSumPNLToday(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	id := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}

	now := time.Now()
	yesterday := now.Add(-48 * time.Hour)
	for _, tc := range []struct {
		pnl  float64
		exit time.Time
	}{
		{-15, now},
		{5, now},
		{100, yesterday}, // outside today's window
	} {
		_, err := repo.CreateTrade(ctx, &domain.Trade{
			StrategyID: id,
			Symbol:     id.Symbol,
			Side:       domain.Long,
			EntryPrice: 100,
			ExitPrice:  101,
			Notional:   500,
			Leverage:   10,
			PNL:        tc.pnl,
			EntryTime:  tc.exit.Add(-time.Hour),
			ExitTime:   tc.exit,
			ExitReason: domain.ExitStopLoss,
		})
		require.NoError(t, err)
	}

	total, err := repo.SumPNLToday(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -10, total, 1e-9)
}
