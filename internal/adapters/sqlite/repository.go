package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"quantSim/internal/domain"
	"quantSim/internal/ports"
)

// Repository implements ports.ResultRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/simulations.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serialises writers from concurrent comparison runs.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, now: time.Now}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		scenario TEXT NOT NULL DEFAULT '',
		termination_reason TEXT NOT NULL,
		termination_error TEXT NOT NULL DEFAULT '',
		breach_rule TEXT DEFAULT NULL,
		bars_processed INTEGER NOT NULL,
		total_trades INTEGER NOT NULL,
		initial_capital REAL NOT NULL,
		final_equity REAL NOT NULL,
		total_return REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe_ratio REAL DEFAULT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		fill_price REAL NOT NULL,
		reference_price REAL NOT NULL,
		commission REAL NOT NULL,
		tax REAL NOT NULL,
		slippage REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		closing INTEGER NOT NULL,
		reason TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS equity_points (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		ts TIMESTAMP NOT NULL,
		equity REAL NOT NULL,
		cash REAL NOT NULL,
		drawdown REAL NOT NULL,
		exposure REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		ts TIMESTAMP NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		detail TEXT NOT NULL,
		source TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_run_seq ON trades (run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events (run_id);
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

// SaveResult writes a run and all its rows in one transaction and returns the new run ID.
func (r *Repository) SaveResult(ctx context.Context, scenario string, result *domain.SimulationResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: nil result", ports.ErrInvalidRequest)
	}
	id := uuid.NewString()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction for run %s: %w", result.Strategy, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var breachRule sql.NullString
	if result.Breach != nil {
		breachRule = sql.NullString{String: result.Breach.Rule, Valid: true}
	}
	var sharpe sql.NullFloat64
	if result.Metrics.SharpeRatio != nil {
		sharpe = sql.NullFloat64{Float64: *result.Metrics.SharpeRatio, Valid: true}
	}

	const insertRun = `
	INSERT INTO runs (id, strategy, scenario, termination_reason, termination_error, breach_rule,
	                  bars_processed, total_trades, initial_capital, final_equity, total_return,
	                  max_drawdown, sharpe_ratio, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertRun,
		id, result.Strategy, scenario, string(result.TerminationReason), result.TerminationError, breachRule,
		result.BarsProcessed, len(result.Trades), result.Metrics.InitialCapital, result.Metrics.FinalEquity,
		result.Metrics.TotalReturn, result.Metrics.MaxDrawdown, sharpe, r.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run for strategy %s: %w", result.Strategy, err)
	}

	if err := insertTrades(ctx, tx, id, result.Trades); err != nil {
		return "", err
	}
	if err := insertEquity(ctx, tx, id, result.EquityCurve); err != nil {
		return "", err
	}
	if err := insertEvents(ctx, tx, id, result.Events); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run %s: %w", id, err)
	}
	r.logger.Debug(ctx, "Run saved", map[string]interface{}{
		"runID": id, "strategy": result.Strategy, "trades": len(result.Trades), "bars": result.BarsProcessed,
	})
	return id, nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, runID string, trades []domain.Trade) error {
	const query = `
	INSERT INTO trades (run_id, seq, symbol, side, quantity, fill_price, reference_price, commission,
	                    tax, slippage, realized_pnl, closing, reason, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()
	for i, t := range trades {
		_, err := stmt.ExecContext(ctx, runID, i, t.Symbol, string(t.Side), t.Quantity, t.FillPrice,
			t.ReferencePrice, t.Commission, t.Tax, t.Slippage, t.RealizedPnL, t.Closing, string(t.Reason), t.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert trade %d for run %s: %w", i, runID, err)
		}
	}
	return nil
}

func insertEquity(ctx context.Context, tx *sql.Tx, runID string, curve []domain.EquityPoint) error {
	const query = `
	INSERT INTO equity_points (run_id, seq, ts, equity, cash, drawdown, exposure)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare equity insert: %w", err)
	}
	defer stmt.Close()
	for i, p := range curve {
		if _, err := stmt.ExecContext(ctx, runID, i, p.Timestamp.UTC(), p.Equity, p.Cash, p.Drawdown, p.Exposure); err != nil {
			return fmt.Errorf("failed to insert equity point %d for run %s: %w", i, runID, err)
		}
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, runID string, events []domain.Event) error {
	const query = `
	INSERT INTO events (run_id, ts, symbol, kind, reason, detail, source)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()
	for i, e := range events {
		_, err := stmt.ExecContext(ctx, runID, e.Timestamp.UTC(), e.Symbol, string(e.Kind), e.Reason, e.Detail, string(e.Source))
		if err != nil {
			return fmt.Errorf("failed to insert event %d for run %s: %w", i, runID, err)
		}
	}
	return nil
}

const runColumns = `
	id, strategy, scenario, termination_reason, bars_processed, total_trades,
	initial_capital, final_equity, total_return, max_drawdown, sharpe_ratio, created_at`

// FindRun retrieves a run summary by its ID.
func (r *Repository) FindRun(ctx context.Context, id string) (*ports.RunSummary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first. A limit of 0 returns every run.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*ports.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*ports.RunSummary, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run during ListRuns: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// FindTrades retrieves the trades of a run in booking order.
func (r *Repository) FindTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	const query = `
	SELECT symbol, side, quantity, fill_price, reference_price, commission, tax, slippage,
	       realized_pnl, closing, reason, executed_at
	FROM trades
	WHERE run_id = ? ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for run %s: %w", runID, err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		var side, reason string
		err := rows.Scan(&t.Symbol, &side, &t.Quantity, &t.FillPrice, &t.ReferencePrice, &t.Commission,
			&t.Tax, &t.Slippage, &t.RealizedPnL, &t.Closing, &reason, &t.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindTrades: %w", err)
		}
		t.Side = domain.OrderSide(side)
		t.Reason = domain.IntentSource(reason)
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// FindEquityCurve retrieves the equity curve of a run in time order.
func (r *Repository) FindEquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	const query = `
	SELECT ts, equity, cash, drawdown, exposure
	FROM equity_points
	WHERE run_id = ? ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve for run %s: %w", runID, err)
	}
	defer rows.Close()

	curve := make([]domain.EquityPoint, 0)
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Timestamp, &p.Equity, &p.Cash, &p.Drawdown, &p.Exposure); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		curve = append(curve, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity rows: %w", err)
	}
	return curve, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*ports.RunSummary, error) {
	run := &ports.RunSummary{}
	var reason string
	var sharpe sql.NullFloat64
	err := s.Scan(&run.ID, &run.Strategy, &run.Scenario, &reason, &run.BarsProcessed, &run.TotalTrades,
		&run.InitialCapital, &run.FinalEquity, &run.TotalReturn, &run.MaxDrawdown, &sharpe, &run.CreatedAt)
	if err != nil {
		return nil, err // sql.ErrNoRows is handled by the caller
	}
	run.TerminationReason = domain.TerminationReason(reason)
	if sharpe.Valid {
		v := sharpe.Float64
		run.SharpeRatio = &v
	}
	return run, nil
}
