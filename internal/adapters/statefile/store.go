// Package statefile persists the small JSON records the live loop needs
// across restarts: the per-strategy trade locks and the circuit-breaker
// status. Writes go through a temp file and an atomic rename so a crash
// mid-write never leaves a truncated record behind.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"
)

const (
	tradeLockFile = "trade_locks.json"
	breakerFile   = "circuit_breaker.json"
)

// Store implements ports.StateStore over a directory of JSON files.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the state directory if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: state directory is required", ports.ErrConfigurationError)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// TradeLock returns the last traded candle timestamp for a strategy, or ""
// when the strategy has never traded.
func (s *Store) TradeLock(id domain.StrategyID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locks, err := s.readLocks()
	if err != nil {
		return "", err
	}
	return locks[id.String()], nil
}

// SetTradeLock records the candle a strategy just traded on.
func (s *Store) SetTradeLock(id domain.StrategyID, candleTimestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locks, err := s.readLocks()
	if err != nil {
		return err
	}
	locks[id.String()] = candleTimestamp
	return s.writeJSON(tradeLockFile, locks)
}

// BreakerStatus reads the persisted circuit-breaker record. A missing file
// yields a zero-value status.
func (s *Store) BreakerStatus() (domain.CircuitBreakerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status domain.CircuitBreakerStatus
	data, err := os.ReadFile(filepath.Join(s.dir, breakerFile))
	if errors.Is(err, os.ErrNotExist) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("reading %s: %w", breakerFile, err)
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.CircuitBreakerStatus{}, fmt.Errorf("%w: %s: %v", ports.ErrStateCorrupt, breakerFile, err)
	}
	return status, nil
}

// SaveBreakerStatus writes the circuit-breaker record.
func (s *Store) SaveBreakerStatus(status domain.CircuitBreakerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeJSON(breakerFile, status)
}

func (s *Store) readLocks() (map[string]string, error) {
	locks := make(map[string]string)
	data, err := os.ReadFile(filepath.Join(s.dir, tradeLockFile))
	if errors.Is(err, os.ErrNotExist) {
		return locks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", tradeLockFile, err)
	}
	if err := json.Unmarshal(data, &locks); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrStateCorrupt, tradeLockFile, err)
	}
	return locks, nil
}

// writeJSON marshals v and atomically replaces the named file with it.
func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
