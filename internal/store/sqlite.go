package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/engine"
	"quantbt/internal/optimize"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ SignalStore = (*SQLiteStore)(nil)

// SQLiteStore persists trade logs, walk-forward results, and live signals
// in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies the
// schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS trades (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	direction    TEXT NOT NULL,
	qty          REAL NOT NULL,
	entry_time   TEXT NOT NULL,
	exit_time    TEXT NOT NULL,
	entry_price  REAL NOT NULL,
	exit_price   REAL NOT NULL,
	gross_pnl    REAL NOT NULL,
	net_pnl      REAL NOT NULL,
	commission   REAL NOT NULL,
	exit_reason  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);

CREATE TABLE IF NOT EXISTS wfo_steps (
	run_id        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	status        TEXT NOT NULL,
	best_trial    INTEGER NOT NULL,
	params        TEXT NOT NULL,
	train_metrics TEXT NOT NULL,
	oos_trades    INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (run_id, step)
);

CREATE TABLE IF NOT EXISTS signals (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy  TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	ts        TEXT NOT NULL,
	direction TEXT NOT NULL,
	reason    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy, id);
`)
	return err
}

// TradeLog returns a trade sink appending every closed trade under the
// given run and strategy labels.
func (s *SQLiteStore) TradeLog(runID, strategy string) *TradeLog {
	return &TradeLog{store: s, runID: runID, strategy: strategy}
}

// TradeLog is an append-only trade sink bound to one run.
type TradeLog struct {
	store    *SQLiteStore
	runID    string
	strategy string
}

var _ engine.TradeSink = (*TradeLog)(nil)

// Append inserts one closed trade.
func (l *TradeLog) Append(t domain.ClosedTrade) error {
	_, err := l.store.db.Exec(`
INSERT OR REPLACE INTO trades
	(id, run_id, strategy, symbol, direction, qty, entry_time, exit_time,
	 entry_price, exit_price, gross_pnl, net_pnl, commission, exit_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, l.runID, l.strategy, t.Symbol, string(t.Direction), t.Qty,
		t.EntryTime.UTC().Format(time.RFC3339Nano),
		t.ExitTime.UTC().Format(time.RFC3339Nano),
		t.EntryPrice, t.ExitPrice, t.GrossPnL, t.NetPnL, t.Commission,
		string(t.ExitReason))
	return err
}

// ListTrades returns all trades recorded under runID in exit-time order.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]domain.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, direction, qty, entry_time, exit_time,
       entry_price, exit_price, gross_pnl, net_pnl, commission, exit_reason
FROM trades WHERE run_id = ? ORDER BY exit_time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.ClosedTrade
	for rows.Next() {
		var (
			t                    domain.ClosedTrade
			direction, reason    string
			entryTime, exitTime  string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &direction, &t.Qty, &entryTime, &exitTime,
			&t.EntryPrice, &t.ExitPrice, &t.GrossPnL, &t.NetPnL, &t.Commission, &reason); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(direction)
		t.ExitReason = domain.TriggerReason(reason)
		if t.EntryTime, err = time.Parse(time.RFC3339Nano, entryTime); err != nil {
			return nil, err
		}
		if t.ExitTime, err = time.Parse(time.RFC3339Nano, exitTime); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// StepSink returns a walk-forward step sink labeled with runID.
func (s *SQLiteStore) StepSink(runID string) optimize.StepSink {
	return &stepSink{store: s, runID: runID}
}

type stepSink struct {
	store *SQLiteStore
	runID string
}

func (k *stepSink) SaveStep(step optimize.StepResult) error {
	params, err := json.Marshal(step.Params)
	if err != nil {
		return err
	}
	trainMetrics, err := json.Marshal(step.TrainMetrics)
	if err != nil {
		return err
	}

	_, err = k.store.db.Exec(`
INSERT OR REPLACE INTO wfo_steps
	(run_id, step, status, best_trial, params, train_metrics, oos_trades, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.runID, step.Step, step.Status, step.BestTrial,
		string(params), string(trainMetrics), len(step.OOSTrades),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// WFOStep is a persisted walk-forward step row.
type WFOStep struct {
	RunID        string
	Step         int
	Status       string
	BestTrial    int
	Params       map[string]float64
	TrainMetrics map[string]float64
	OOSTrades    int
}

// ListSteps returns the steps of a walk-forward run in order.
func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]WFOStep, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, step, status, best_trial, params, train_metrics, oos_trades
FROM wfo_steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []WFOStep
	for rows.Next() {
		var (
			st                   WFOStep
			params, trainMetrics string
		)
		if err := rows.Scan(&st.RunID, &st.Step, &st.Status, &st.BestTrial,
			&params, &trainMetrics, &st.OOSTrades); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &st.Params); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(trainMetrics), &st.TrainMetrics); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// SaveSignal appends a live signal.
func (s *SQLiteStore) SaveSignal(ctx context.Context, strategy string, sig domain.SignalEvent) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO signals (strategy, symbol, ts, direction, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		strategy, sig.Symbol, sig.Timestamp.UTC().Format(time.RFC3339Nano),
		string(sig.Direction), string(sig.Reason),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListSignals returns the newest signals for a strategy, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategy string, limit int) ([]SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, strategy, symbol, ts, direction, reason
FROM signals WHERE strategy = ? ORDER BY id DESC LIMIT ?`, strategy, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []SignalRecord
	for rows.Next() {
		var (
			rec               SignalRecord
			ts, dir, reason   string
		)
		if err := rows.Scan(&rec.ID, &rec.Strategy, &rec.Symbol, &ts, &dir, &reason); err != nil {
			return nil, err
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		rec.Direction = domain.Direction(dir)
		rec.Reason = domain.TriggerReason(reason)
		signals = append(signals, rec)
	}
	return signals, rows.Err()
}
