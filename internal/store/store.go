// Package store defines storage interfaces for the bar series a backtest
// replays and the run results it produces.
package store

import (
	"context"
	"time"

	"tradesim/internal/domain"
)

// BarStore persists and retrieves indicator-annotated bars.
type BarStore interface {
	// WriteBars persists a batch of bars under the given interval.
	WriteBars(ctx context.Context, interval string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and interval within
	// [start, end], in timestamp order.
	ReadBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available for the interval.
	ListSymbols(ctx context.Context, interval string) ([]string, error)
}

// ResultStore persists completed runs.
type ResultStore interface {
	// SaveRun stores a run with its trades, missed signals and daily
	// capital snapshots atomically.
	SaveRun(ctx context.Context, rec RunRecord) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// ListTrades returns the trade log of a run in event order.
	ListTrades(ctx context.Context, runID string) ([]domain.TradeEvent, error)
}

// RunRecord is one instrument's run as persisted.
type RunRecord struct {
	RunSummary
	Trades []domain.TradeEvent
	Missed []domain.MissedSignal
	Days   []domain.DayCapital
}

// RunSummary is the header row of a persisted run.
type RunSummary struct {
	ID              string
	Symbol          string
	Interval        string
	CreatedAt       time.Time
	InitialCapital  float64
	FinalCapital    float64
	TotalProfitLoss float64
	WinRate         float64
	TotalTrades     int
}

// timeLayout is how bar times are written to text formats. Bar times are
// exchange-local wall clock without a zone.
const timeLayout = "2006-01-02 15:04:05"
