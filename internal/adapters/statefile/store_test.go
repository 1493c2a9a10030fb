package statefile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewStore_RequiresDirectory(t *testing.T) {
	_, err := NewStore("")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestTradeLock_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	eth := domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"}
	btc := domain.StrategyID{Symbol: "BTCUSDT", Timeframe: "4h"}

	// Unknown strategy yields the empty lock.
	lock, err := store.TradeLock(eth)
	require.NoError(t, err)
	assert.Empty(t, lock)

	require.NoError(t, store.SetTradeLock(eth, "2025-03-01T12:00:00Z"))
	require.NoError(t, store.SetTradeLock(btc, "2025-03-01T08:00:00Z"))

	lock, err = store.TradeLock(eth)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T12:00:00Z", lock)

	// Re-locking the same strategy overwrites, leaving others untouched.
	require.NoError(t, store.SetTradeLock(eth, "2025-03-01T13:00:00Z"))
	lock, err = store.TradeLock(eth)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T13:00:00Z", lock)

	lock, err = store.TradeLock(btc)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T08:00:00Z", lock)
}

func TestBreakerStatus_MissingFileIsZero(t *testing.T) {
	store := newTestStore(t)

	status, err := store.BreakerStatus()
	require.NoError(t, err)
	assert.Equal(t, domain.CircuitBreakerStatus{}, status)
}

func TestBreakerStatus_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	want := domain.CircuitBreakerStatus{
		PeakEquity:    1200,
		CurrentEquity: 1100,
		Drawdown:      1.0 / 12.0,
		Tripped:       true,
		TripReason:    "drawdown 8.33% exceeds limit",
		TrippedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		LastUpdate:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveBreakerStatus(want))

	got, err := store.BreakerStatus()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A second store over the same directory sees the persisted record.
	reopened, err := NewStore(store.dir)
	require.NoError(t, err)
	got, err = reopened.BreakerStatus()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCorruptFilesSurfaceAsStateCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, breakerFile), []byte("{not json"), 0o644))
	_, err = store.BreakerStatus()
	assert.ErrorIs(t, err, ports.ErrStateCorrupt)

	require.NoError(t, os.WriteFile(filepath.Join(dir, tradeLockFile), []byte("[]"), 0o644))
	_, err = store.TradeLock(domain.StrategyID{Symbol: "ETHUSDT", Timeframe: "1h"})
	assert.ErrorIs(t, err, ports.ErrStateCorrupt)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveBreakerStatus(domain.CircuitBreakerStatus{PeakEquity: 1000}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, breakerFile, entries[0].Name())
}
