package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradesim/internal/domain"
)

const fullYAML = `
storage:
  data_dir: "/tmp/tradesim/data"
  bar_format: "csv"
  sqlite_path: "/tmp/tradesim/results.db"
logging:
  level: "debug"
  format: "text"
session:
  market_close: "15:30"
  square_off_lead: 30
  no_new_buys_lead: 60
trade:
  initial_capital: 100000
  trade_allocation: 0.25
  leverage: 5
  target_profit_percentage: 1.5
  atr_multiplier: 2
charges:
  BUY:
    BROKERAGE: 0.03
    STT: 0.025
    TRANSACTION: 0.00297
    SEBI: 0.0001
    GST: 18
    STAMP: 0.003
  SELL:
    BROKERAGE: 0.03
    STT: 0.025
    TRANSACTION: 0.00297
    SEBI: 0.0001
    GST: 18
    STAMP: 0
indicators:
  rsi_period: 14
  macd_fast: 12
  macd_slow: 26
  macd_signal: 9
  atr_period: 14
  atr_threshold: 0.5
  buy_rsi_threshold_low: 30
  buy_rsi_threshold_high: 35
  sell_rsi_threshold: 70
historical_data:
  exchange: "NSE"
  interval: "FIVE_MINUTE"
  from_date: "2024-01-01"
  to_date: "2024-03-31"
  instruments:
    - name: "RELIANCE"
      token: "2885"
    - name: "INFY"
      token: "1594"
backtest:
  max_workers: 4
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradesim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TRADESIM_DATA_DIR", "TRADESIM_SQLITE_PATH", "LOG_LEVEL", "TRADESIM_MAX_WORKERS"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, fullYAML))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/tradesim/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tradesim/data")
	}
	if cfg.Storage.BarFormat != "csv" {
		t.Errorf("Storage.BarFormat = %q, want %q", cfg.Storage.BarFormat, "csv")
	}

	// -- Trade --
	if cfg.Trade.Leverage != 5 {
		t.Errorf("Trade.Leverage = %v, want 5", cfg.Trade.Leverage)
	}
	if cfg.Trade.TargetProfitPercentage != 1.5 {
		t.Errorf("Trade.TargetProfitPercentage = %v, want 1.5", cfg.Trade.TargetProfitPercentage)
	}

	// -- Charges --
	if got := cfg.Charges["BUY"]["GST"]; got != 18 {
		t.Errorf("Charges[BUY][GST] = %v, want 18", got)
	}
	if _, ok := cfg.Charges["SELL"]["STAMP"]; !ok {
		t.Error("Charges[SELL][STAMP] missing")
	}

	// -- Indicators --
	if cfg.Indicators.MACDSlow != 26 {
		t.Errorf("Indicators.MACDSlow = %d, want 26", cfg.Indicators.MACDSlow)
	}

	// -- Historical data --
	if len(cfg.HistoricalData.Instruments) != 2 || cfg.HistoricalData.Instruments[1].Token != "1594" {
		t.Errorf("Instruments = %+v", cfg.HistoricalData.Instruments)
	}
	start, end, err := cfg.HistoricalData.Range()
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %s", start)
	}
	if end.Day() != 31 || end.Hour() != 23 {
		t.Errorf("end = %s, want the last millisecond of 2024-03-31", end)
	}

	if cfg.Backtest.MaxWorkers != 4 {
		t.Errorf("Backtest.MaxWorkers = %d, want 4", cfg.Backtest.MaxWorkers)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `
storage:
  data_dir: "/data"
trade:
  initial_capital: 50000
  trade_allocation: 0.5
  target_profit_percentage: 2
charges:
  BUY: {}
historical_data:
  interval: "ONE_MINUTE"
  from_date: "2024-01-01"
  to_date: "2024-01-31"
  instruments:
    - name: "TCS"
`))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Trade.Leverage != 1 {
		t.Errorf("Trade.Leverage = %v, want default 1", cfg.Trade.Leverage)
	}
	if cfg.Trade.ATRMultiplier != 1 {
		t.Errorf("Trade.ATRMultiplier = %v, want default 1", cfg.Trade.ATRMultiplier)
	}
	if cfg.Storage.BarFormat != "parquet" {
		t.Errorf("Storage.BarFormat = %q, want default parquet", cfg.Storage.BarFormat)
	}
	if cfg.Session.SquareOffLead() != 30*time.Minute || cfg.Session.NoNewBuysLead() != time.Hour {
		t.Errorf("session leads = %s/%s, want 30m/1h", cfg.Session.SquareOffLead(), cfg.Session.NoNewBuysLead())
	}
	if cfg.Backtest.MaxWorkers != 1 {
		t.Errorf("Backtest.MaxWorkers = %d, want default 1", cfg.Backtest.MaxWorkers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRADESIM_DATA_DIR", "/env/data")
	t.Setenv("TRADESIM_MAX_WORKERS", "8")

	cfg, err := Load(writeConfig(t, fullYAML))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	// sqlite_path should remain from YAML since no env override was set.
	if cfg.Storage.SQLitePath != "/tmp/tradesim/results.db" {
		t.Errorf("Storage.SQLitePath = %q, want value from YAML", cfg.Storage.SQLitePath)
	}
	if cfg.Backtest.MaxWorkers != 8 {
		t.Errorf("Backtest.MaxWorkers = %d, want 8 (env override)", cfg.Backtest.MaxWorkers)
	}
}

func TestValidateErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"allocation", func(c *Config) { c.Trade.TradeAllocation = 0 }, "trade.trade_allocation"},
		{"capital", func(c *Config) { c.Trade.InitialCapital = -1 }, "trade.initial_capital"},
		{"format", func(c *Config) { c.Storage.BarFormat = "xlsx" }, "storage.bar_format"},
		{"charges", func(c *Config) { c.Charges = nil }, "charges"},
		{"dates", func(c *Config) { c.HistoricalData.ToDate = "2023-12-31" }, "historical_data.to_date"},
		{"instruments", func(c *Config) { c.HistoricalData.Instruments = nil }, "historical_data.instruments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, fullYAML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mut(cfg)

			var ce *domain.ConfigError
			if err := cfg.Validate(); !errors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want *domain.ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load should fail for a missing file")
	}
}
