// Package sqlite implements the position and trade repositories over a local
// SQLite database, so an open live position and the realized ledger survive a
// process restart.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"neuroTradeBot/internal/domain"
	"neuroTradeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.PositionRepository and ports.TradeRepository.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if needed) the database and verifies the schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/neurotradebot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the live loop and ad hoc reads.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// The Go driver benefits from a single connection with SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		side TEXT NOT NULL,
		state TEXT NOT NULL,
		entry_price REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		notional REAL NOT NULL,
		margin_used REAL NOT NULL,
		leverage INTEGER NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		trailing_active INTEGER NOT NULL DEFAULT 0,
		activation_price REAL NOT NULL,
		peak_price REAL NOT NULL,
		callback_rate REAL NOT NULL,
		risk_amount REAL NOT NULL,
		risk_reward_ratio REAL NOT NULL,
		cap_gains INTEGER NOT NULL DEFAULT 0,
		max_hold_candles INTEGER NOT NULL DEFAULT 0,
		candles_held INTEGER NOT NULL DEFAULT 0,
		last_known_price REAL NOT NULL,
		stop_order_id INTEGER DEFAULT NULL,
		trailing_order_id INTEGER DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		notional REAL NOT NULL,
		leverage INTEGER NOT NULL,
		pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		exit_reason TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_strategy_state ON positions (symbol, timeframe, state);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy_exit_time ON trades (symbol, timeframe, exit_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PositionRepository Implementation ---

// CreatePosition saves a new position and returns its assigned ID.
func (r *Repository) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (symbol, timeframe, side, state, entry_price, entry_time,
	                       notional, margin_used, leverage, stop_loss, take_profit,
	                       trailing_active, activation_price, peak_price, callback_rate,
	                       risk_amount, risk_reward_ratio, cap_gains, max_hold_candles,
	                       candles_held, last_known_price, stop_order_id, trailing_order_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		pos.StrategyID.Symbol, pos.StrategyID.Timeframe, pos.Side, pos.State,
		pos.EntryPrice, pos.EntryTime, pos.Notional, pos.MarginUsed, pos.Leverage,
		pos.StopLoss, pos.TakeProfit, pos.TrailingActive, pos.ActivationPrice,
		pos.PeakPrice, pos.CallbackRate, pos.RiskAmount, pos.RiskRewardRatio,
		pos.CapGains, pos.MaxHoldCandles, pos.CandlesHeld, pos.LastKnownPrice,
		nullInt64(pos.StopOrderID), nullInt64(pos.TrailingOrderID))
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for %s: %w", pos.StrategyID.String(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.StrategyID.String(), err)
	}
	pos.ID = id
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "strategy": pos.StrategyID.String()})
	return id, nil
}

// UpdatePosition modifies an existing position based on its ID.
func (r *Repository) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET state = ?, stop_loss = ?, take_profit = ?, trailing_active = ?, peak_price = ?,
	    candles_held = ?, last_known_price = ?, stop_order_id = ?, trailing_order_id = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		pos.State, pos.StopLoss, pos.TakeProfit, pos.TrailingActive, pos.PeakPrice,
		pos.CandlesHeld, pos.LastKnownPrice,
		nullInt64(pos.StopOrderID), nullInt64(pos.TrailingOrderID),
		pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", pos.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	return nil
}

// FindOpenByStrategy retrieves the open position for a strategy, if any.
// Returns nil, nil when the strategy is flat.
func (r *Repository) FindOpenByStrategy(ctx context.Context, id domain.StrategyID) (*domain.Position, error) {
	const query = `
	SELECT id, symbol, timeframe, side, state, entry_price, entry_time,
	       notional, margin_used, leverage, stop_loss, take_profit,
	       trailing_active, activation_price, peak_price, callback_rate,
	       risk_amount, risk_reward_ratio, cap_gains, max_hold_candles,
	       candles_held, last_known_price, stop_order_id, trailing_order_id
	FROM positions
	WHERE symbol = ? AND timeframe = ? AND state IN (?, ?)`

	row := r.db.QueryRowContext(ctx, query, id.Symbol, id.Timeframe,
		domain.StateActiveFixedStop, domain.StateActiveTrailing)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open position for %s: %w", id.String(), err)
	}
	return pos, nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new ledger entry and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, timeframe, side, entry_price, exit_price, notional,
	                    leverage, pnl, entry_time, exit_time, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.StrategyID.Symbol, trade.StrategyID.Timeframe, trade.Side,
		trade.EntryPrice, trade.ExitPrice, trade.Notional, trade.Leverage,
		trade.PNL, trade.EntryTime, trade.ExitTime, trade.ExitReason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for %s: %w", trade.StrategyID.String(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.StrategyID.String(), err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{
		"tradeID":  id,
		"strategy": trade.StrategyID.String(),
		"pnl":      trade.PNL,
		"reason":   string(trade.ExitReason),
	})
	return id, nil
}

// FindByStrategy retrieves the most recent trades for a strategy, up to a limit.
func (r *Repository) FindByStrategy(ctx context.Context, id domain.StrategyID, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, symbol, timeframe, side, entry_price, exit_price, notional,
	       leverage, pnl, entry_time, exit_time, exit_reason
	FROM trades
	WHERE symbol = ? AND timeframe = ?
	ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, id.Symbol, id.Timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w", id.String(), err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindByStrategy: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// SumPNLToday sums the realized P&L of all trades closed today, used by the
// circuit breaker's daily-loss check.
func (r *Repository) SumPNLToday(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE date(exit_time) = date('now', 'localtime')`
	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum today's P&L: %w", err)
	}
	return total, nil
}

// --- Helper Scan Functions ---

// scanner is compatible with both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side, state string
	var stopOrderID, trailingOrderID sql.NullInt64
	err := s.Scan(
		&p.ID, &p.StrategyID.Symbol, &p.StrategyID.Timeframe, &side, &state,
		&p.EntryPrice, &p.EntryTime, &p.Notional, &p.MarginUsed, &p.Leverage,
		&p.StopLoss, &p.TakeProfit, &p.TrailingActive, &p.ActivationPrice,
		&p.PeakPrice, &p.CallbackRate, &p.RiskAmount, &p.RiskRewardRatio,
		&p.CapGains, &p.MaxHoldCandles, &p.CandlesHeld, &p.LastKnownPrice,
		&stopOrderID, &trailingOrderID)
	if err != nil {
		return nil, err
	}
	p.Symbol = p.StrategyID.Symbol
	p.Side = domain.Side(side)
	p.State = domain.PositionState(state)
	if stopOrderID.Valid {
		p.StopOrderID = &stopOrderID.Int64
	}
	if trailingOrderID.Valid {
		p.TrailingOrderID = &trailingOrderID.Int64
	}
	return p, nil
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, reason string
	err := s.Scan(
		&t.ID, &t.StrategyID.Symbol, &t.StrategyID.Timeframe, &side,
		&t.EntryPrice, &t.ExitPrice, &t.Notional, &t.Leverage, &t.PNL,
		&t.EntryTime, &t.ExitTime, &reason)
	if err != nil {
		return nil, err
	}
	t.Symbol = t.StrategyID.Symbol
	t.Side = domain.Side(side)
	t.ExitReason = domain.ExitReason(reason)
	return t, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
