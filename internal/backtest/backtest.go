// Package backtest runs the trade simulator over a batch of instruments,
// reading bars from a BarStore and optionally persisting every run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/engine"
	"tradesim/internal/store"
	"tradesim/internal/summary"
	"tradesim/internal/util"
)

// Options configures a batch.
type Options struct {
	Interval   string
	Start, End time.Time
	MaxWorkers int

	// Echoed into every summary.
	Exchange   string
	FromDate   string
	ToDate     string
	Indicators config.IndicatorConfig
}

// Report is the outcome of one instrument's run.
type Report struct {
	RunID      string
	Instrument config.Instrument
	Result     *engine.Result
	Summary    summary.FinalSummary
}

// Backtester replays stored bars through the engine for each instrument.
type Backtester struct {
	bars    store.BarStore
	results store.ResultStore // nil disables persistence
	engine  *engine.Engine
	opts    Options
	log     *slog.Logger
	now     func() time.Time
}

// NewBacktester creates a Backtester. results may be nil.
func NewBacktester(bars store.BarStore, results store.ResultStore, eng *engine.Engine, opts Options, logger *slog.Logger) *Backtester {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{
		bars:    bars,
		results: results,
		engine:  eng,
		opts:    opts,
		log:     logger,
		now:     time.Now,
	}
}

// Run simulates every instrument, at most MaxWorkers at a time, and returns
// the reports in input order. Instruments without bars or whose bars cannot
// be read are logged and left out. A state invariant violation, a config
// error or cancellation aborts the whole batch.
func (bt *Backtester) Run(ctx context.Context, instruments []config.Instrument) ([]Report, error) {
	slots := make([]*Report, len(instruments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bt.opts.MaxWorkers)
	for i, in := range instruments {
		i, in := i, in
		g.Go(func() error {
			rep, err := bt.runOne(gctx, in)
			if err != nil {
				if fatal(err) {
					return fmt.Errorf("%s: %w", in.Name, err)
				}
				bt.log.Error("instrument failed, skipping", "instrument", in.Name, "error", err)
				return nil
			}
			slots[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			reports = append(reports, *r)
		}
	}
	return reports, nil
}

func (bt *Backtester) runOne(ctx context.Context, in config.Instrument) (*Report, error) {
	log := bt.log.With("instrument", in.Name)

	bars, err := bt.bars.ReadBars(ctx, in.Name, bt.opts.Interval, bt.opts.Start, bt.opts.End)
	if err != nil {
		return nil, fmt.Errorf("reading bars: %w", err)
	}
	if len(bars) == 0 {
		log.Warn("no historical data available, skipping", "interval", bt.opts.Interval)
		return nil, nil
	}

	log.Info("backtest started", "bars", len(bars))
	res, err := bt.engine.Run(ctx, in.Name, bars)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:      uuid.NewString(),
		Instrument: in,
		Result:     res,
		Summary: summary.Summarize(res, bt.engine.Params(), summary.Meta{
			Instrument: in.Name,
			Token:      in.Token,
			Exchange:   bt.opts.Exchange,
			Interval:   bt.opts.Interval,
			FromDate:   bt.opts.FromDate,
			ToDate:     bt.opts.ToDate,
			Indicators: bt.opts.Indicators,
		}),
	}
	log.Info("backtest finished",
		"run_id", rep.RunID,
		"trades", len(res.Trades),
		"profit_loss", rep.Summary.TotalProfitLoss,
		"win_rate", rep.Summary.WinRate,
		"rejected_bars", len(res.Rejected),
	)

	if bt.results != nil {
		rec := bt.record(rep)
		err := util.Retry(ctx, 5, 50*time.Millisecond, store.IsBusy, func() error {
			return bt.results.SaveRun(ctx, rec)
		})
		if err != nil {
			return nil, fmt.Errorf("saving run %s: %w", rep.RunID, err)
		}
	}
	return rep, nil
}

func (bt *Backtester) record(rep *Report) store.RunRecord {
	s := rep.Summary
	return store.RunRecord{
		RunSummary: store.RunSummary{
			ID:              rep.RunID,
			Symbol:          rep.Instrument.Name,
			Interval:        bt.opts.Interval,
			CreatedAt:       bt.now(),
			InitialCapital:  s.InitialCapital,
			FinalCapital:    s.FinalCapital,
			TotalProfitLoss: s.TotalProfitLoss,
			WinRate:         s.WinRate,
			TotalTrades:     len(rep.Result.Trades),
		},
		Trades: rep.Result.Trades,
		Missed: rep.Result.Missed,
		Days:   rep.Result.Days,
	}
}

// fatal reports whether err must stop the batch rather than one instrument.
func fatal(err error) bool {
	var sv *domain.StateInvariantViolation
	var ce *domain.ConfigError
	return errors.As(err, &sv) || errors.As(err, &ce) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Summaries extracts the final summaries of reports, in order.
func Summaries(reports []Report) []summary.FinalSummary {
	out := make([]summary.FinalSummary, len(reports))
	for i, r := range reports {
		out[i] = r.Summary
	}
	return out
}
