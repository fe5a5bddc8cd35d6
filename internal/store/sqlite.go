package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tradesim/internal/domain"
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	symbol            TEXT NOT NULL,
	interval          TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	initial_capital   REAL NOT NULL,
	final_capital     REAL NOT NULL,
	total_profit_loss REAL NOT NULL,
	win_rate          REAL NOT NULL,
	total_trades      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	seq          INTEGER NOT NULL,
	time         TEXT NOT NULL,
	type         TEXT NOT NULL,
	reason       TEXT NOT NULL,
	price        REAL NOT NULL,
	shares       INTEGER NOT NULL,
	profit_loss  REAL NOT NULL,
	charges      REAL NOT NULL,
	brokerage    REAL NOT NULL,
	stt          REAL NOT NULL,
	transaction_charge REAL NOT NULL,
	sebi         REAL NOT NULL,
	gst          REAL NOT NULL,
	stamp_duty   REAL NOT NULL,
	position_id  INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS missed_signals (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq    INTEGER NOT NULL,
	time   TEXT NOT NULL,
	price  REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS day_capital (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	date          TEXT NOT NULL,
	start_capital REAL NOT NULL,
	end_capital   REAL NOT NULL,
	PRIMARY KEY (run_id, date)
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; the batch runner serializes saves through this pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run and all its child rows in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, symbol, interval, created_at, initial_capital, final_capital, total_profit_loss, win_rate, total_trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Symbol, rec.Interval, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.InitialCapital, rec.FinalCapital, rec.TotalProfitLoss, rec.WinRate, rec.TotalTrades,
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", rec.ID, err)
	}

	for i, t := range rec.Trades {
		c := t.Charges
		if _, err = tx.ExecContext(ctx, `INSERT INTO trades
			(run_id, seq, time, type, reason, price, shares, profit_loss, charges,
			 brokerage, stt, transaction_charge, sebi, gst, stamp_duty, position_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, t.Time.Format(timeLayout), string(t.Type), t.Reason, t.Price, t.Shares, t.ProfitLoss, c.Total,
			c.Brokerage, c.STT, c.TransactionCharge, c.SEBICharge, c.GST, c.StampDuty, t.PositionID,
		); err != nil {
			return fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	for i, m := range rec.Missed {
		if _, err = tx.ExecContext(ctx, `INSERT INTO missed_signals (run_id, seq, time, price, reason) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, i, m.Time.Format(timeLayout), m.Price, m.Reason,
		); err != nil {
			return fmt.Errorf("inserting missed signal %d: %w", i, err)
		}
	}

	for _, d := range rec.Days {
		if _, err = tx.ExecContext(ctx, `INSERT INTO day_capital (run_id, date, start_capital, end_capital) VALUES (?, ?, ?, ?)`,
			rec.ID, d.Date.Format("2006-01-02"), d.StartCapital, d.EndCapital,
		); err != nil {
			return fmt.Errorf("inserting day %s: %w", d.Date.Format("2006-01-02"), err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, interval, created_at, initial_capital, final_capital,
		total_profit_loss, win_rate, total_trades
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var created string
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Interval, &created, &r.InitialCapital, &r.FinalCapital,
			&r.TotalProfitLoss, &r.WinRate, &r.TotalTrades); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("run %s: created_at: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTrades returns the trade log of a run in the order it was recorded.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]domain.TradeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT time, type, reason, price, shares, profit_loss, charges,
		brokerage, stt, transaction_charge, sebi, gst, stamp_duty, position_id
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.TradeEvent
	for rows.Next() {
		var t domain.TradeEvent
		var ts, typ string
		c := &t.Charges
		if err := rows.Scan(&ts, &typ, &t.Reason, &t.Price, &t.Shares, &t.ProfitLoss, &c.Total,
			&c.Brokerage, &c.STT, &c.TransactionCharge, &c.SEBICharge, &c.GST, &c.StampDuty, &t.PositionID); err != nil {
			return nil, err
		}
		if t.Time, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("trade time: %w", err)
		}
		t.Type = domain.TradeType(typ)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// IsBusy reports whether err is a transient SQLITE_BUSY or SQLITE_LOCKED
// failure worth retrying.
func IsBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
