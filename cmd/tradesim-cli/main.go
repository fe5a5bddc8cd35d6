package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/store"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tradesim-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version            Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  runs [-limit N]    List recent backtest runs\n")
		fmt.Fprintf(os.Stderr, "  trades <run-id>    Print the trade log of a run\n")
		fmt.Fprintf(os.Stderr, "  symbols            List symbols with bars for the configured interval\n")
		fmt.Fprintf(os.Stderr, "  import <csv-dir>   Convert <csv-dir>/<interval>/*.csv into the Parquet bar store\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("tradesim-cli %s\n", version)

	case "runs":
		fs := flag.NewFlagSet("runs", flag.ExitOnError)
		limit := fs.Int("limit", 20, "number of runs to list")
		fs.Parse(os.Args[2:])

		db := openResults()
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), *limit)
		if err != nil {
			log.Fatalf("listing runs: %v", err)
		}
		fmt.Printf("%-36s  %-12s  %-12s  %-19s  %12s  %8s  %6s\n",
			"ID", "Symbol", "Interval", "Created", "P/L", "Win %", "Trades")
		for _, r := range runs {
			fmt.Printf("%-36s  %-12s  %-12s  %-19s  %12.2f  %8.2f  %6d\n",
				r.ID, r.Symbol, r.Interval, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.TotalProfitLoss, r.WinRate, r.TotalTrades)
		}

	case "trades":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "trades: missing run id\n\n")
			flag.Usage()
			os.Exit(1)
		}
		db := openResults()
		defer db.Close()
		trades, err := db.ListTrades(context.Background(), os.Args[2])
		if err != nil {
			log.Fatalf("listing trades: %v", err)
		}
		fmt.Printf("%-19s  %-10s  %-30s  %10s  %8s  %12s  %9s\n",
			"Time", "Type", "Reason", "Price", "Shares", "P/L", "Charges")
		for _, t := range trades {
			fmt.Printf("%-19s  %-10s  %-30s  %10.2f  %8d  %12.2f  %9.2f\n",
				t.Time.Format("2006-01-02 15:04:05"), t.Type, t.Reason, t.Price, t.Shares, t.ProfitLoss, t.Charges.Total)
		}

	case "symbols":
		cfg := loadConfig()
		bars := barStore(cfg)
		syms, err := bars.ListSymbols(context.Background(), cfg.HistoricalData.Interval)
		if err != nil {
			log.Fatalf("listing symbols: %v", err)
		}
		for _, s := range syms {
			fmt.Println(s)
		}

	case "import":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "import: missing csv directory\n\n")
			flag.Usage()
			os.Exit(1)
		}
		cfg := loadConfig()
		n, err := importCSV(context.Background(), os.Args[2], cfg.Storage.DataDir, cfg.HistoricalData.Interval)
		if err != nil {
			log.Fatalf("import: %v", err)
		}
		fmt.Printf("imported %d bars\n", n)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func barStore(cfg *config.Config) store.BarStore {
	if cfg.Storage.BarFormat == "csv" {
		return store.NewCSVStore(cfg.Storage.DataDir)
	}
	return store.NewParquetStore(cfg.Storage.DataDir)
}

// openResults opens the SQLite result store named by the config file, or by
// TRADESIM_SQLITE_PATH when that is set.
func openResults() *store.SQLiteStore {
	path := os.Getenv("TRADESIM_SQLITE_PATH")
	if path == "" {
		path = loadConfig().Storage.SQLitePath
	}
	if path == "" {
		log.Fatalf("no sqlite path configured")
	}
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	return db
}

// importCSV copies every symbol's CSV bars into the Parquet store.
func importCSV(ctx context.Context, csvDir, dataDir, interval string) (int, error) {
	src := store.NewCSVStore(csvDir)
	dst := store.NewParquetStore(dataDir)

	syms, err := src.ListSymbols(ctx, interval)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, sym := range syms {
		bars, err := src.ReadBars(ctx, sym, interval, time.Time{}, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return total, fmt.Errorf("%s: %w", sym, err)
		}
		if err := dst.WriteBars(ctx, interval, bars); err != nil {
			return total, fmt.Errorf("%s: %w", sym, err)
		}
		total += len(bars)
		slog.Info("imported", "symbol", sym, "bars", len(bars))
	}
	return total, nil
}
