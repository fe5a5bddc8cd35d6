// Batch runner: replays stored bars for every configured instrument through
// the intraday simulator and prints the performance table.
//
// Usage:
//
//	go run ./cmd/tradesim -config config/tradesim.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradesim/internal/backtest"
	"tradesim/internal/charges"
	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/store"
	"tradesim/internal/summary"
	"tradesim/internal/util"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("batch aborted", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}
	fs := flag.NewFlagSet("tradesim", flag.ContinueOnError)
	fs.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config")
	noSave := fs.Bool("no-save", false, "do not persist runs to SQLite")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	calc, err := charges.New(charges.Schedule(cfg.Charges))
	if err != nil {
		return fmt.Errorf("invalid charges: %w", err)
	}
	cal, err := util.NewTradingCalendar(cfg.Session.MarketClose, cfg.Session.SquareOffLead(), cfg.Session.NoNewBuysLead())
	if err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	eng, err := engine.New(engine.Params{
		InitialCapital:  cfg.Trade.InitialCapital,
		TradeAllocation: cfg.Trade.TradeAllocation,
		Leverage:        cfg.Trade.Leverage,
		TargetProfitPct: cfg.Trade.TargetProfitPercentage,
		ATRMultiplier:   cfg.Trade.ATRMultiplier,
	}, calc, cal, logger)
	if err != nil {
		return fmt.Errorf("invalid trade settings: %w", err)
	}

	var bars store.BarStore
	switch cfg.Storage.BarFormat {
	case "csv":
		bars = store.NewCSVStore(cfg.Storage.DataDir)
	default:
		bars = store.NewParquetStore(cfg.Storage.DataDir)
	}

	var results store.ResultStore
	if !*noSave && cfg.Storage.SQLitePath != "" {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening result store: %w", err)
		}
		defer db.Close()
		results = db
	}

	start, end, err := cfg.HistoricalData.Range()
	if err != nil {
		return fmt.Errorf("invalid date range: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hd := cfg.HistoricalData
	bt := backtest.NewBacktester(bars, results, eng, backtest.Options{
		Interval:   hd.Interval,
		Start:      start,
		End:        end,
		MaxWorkers: cfg.Backtest.MaxWorkers,
		Exchange:   hd.Exchange,
		FromDate:   hd.FromDate,
		ToDate:     hd.ToDate,
		Indicators: cfg.Indicators,
	}, logger)

	slog.Info("starting batch", "instruments", len(hd.Instruments), "interval", hd.Interval,
		"from", hd.FromDate, "to", hd.ToDate, "workers", cfg.Backtest.MaxWorkers)

	reports, err := bt.Run(ctx, hd.Instruments)
	if err != nil {
		return err
	}

	table := summary.Batch(backtest.Summaries(reports))
	printTable(table)
	slog.Info("batch complete", "instruments", len(reports), "total_net_pl", table.TotalNetPL,
		"completed_trades", table.TotalTrades, "win_pct", table.OverallWinPct)
	return nil
}

func printTable(t summary.BatchTable) {
	fmt.Printf("%-20s %16s %10s\n", "Instrument", "Profit/Loss", "Win Rate")
	for _, r := range t.Rows {
		fmt.Printf("%-20s %16s %10s\n", r.Name, summary.FormatAmount(r.ProfitLoss), summary.FormatPct(r.WinRate))
	}
	fmt.Printf("%-20s %16s\n", "Total Net P/L", summary.FormatAmount(t.TotalNetPL))
	fmt.Printf("%-20s %16s %10s\n", "Completed trades", summary.FormatInt(int64(t.TotalTrades)), summary.FormatPct(t.OverallWinPct))
}
