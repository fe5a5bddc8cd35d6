package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tradesim/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for a tradesim batch.
type Config struct {
	Storage        Storage                       `yaml:"storage"`
	Logging        Logging                       `yaml:"logging"`
	Session        Session                       `yaml:"session"`
	Trade          TradeConfig                   `yaml:"trade"`
	Charges        map[string]map[string]float64 `yaml:"charges"`
	Indicators     IndicatorConfig               `yaml:"indicators"`
	HistoricalData HistoricalData                `yaml:"historical_data"`
	Backtest       BacktestConfig                `yaml:"backtest"`
}

// Storage holds paths for bar input and result persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	BarFormat  string `yaml:"bar_format"` // "parquet" or "csv"
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Session sets the intraday deadlines. Leads are minutes before close.
type Session struct {
	MarketClose      string `yaml:"market_close"`
	SquareOffLeadMin int    `yaml:"square_off_lead"`
	NoNewBuysLeadMin int    `yaml:"no_new_buys_lead"`
}

// TradeConfig holds capital and exit parameters.
type TradeConfig struct {
	InitialCapital         float64 `yaml:"initial_capital"`
	TradeAllocation        float64 `yaml:"trade_allocation"`
	Leverage               float64 `yaml:"leverage"`
	TargetProfitPercentage float64 `yaml:"target_profit_percentage"`
	ATRMultiplier          float64 `yaml:"atr_multiplier"`
}

// IndicatorConfig records how the upstream signals were produced. It is
// echoed into summaries and has no effect on the simulation.
type IndicatorConfig struct {
	RSIPeriod           int     `yaml:"rsi_period"`
	MACDFast            int     `yaml:"macd_fast"`
	MACDSlow            int     `yaml:"macd_slow"`
	MACDSignal          int     `yaml:"macd_signal"`
	ATRPeriod           int     `yaml:"atr_period"`
	ATRThreshold        float64 `yaml:"atr_threshold"`
	BuyRSIThresholdLow  float64 `yaml:"buy_rsi_threshold_low"`
	BuyRSIThresholdHigh float64 `yaml:"buy_rsi_threshold_high"`
	SellRSIThreshold    float64 `yaml:"sell_rsi_threshold"`
}

// HistoricalData describes the bar series to replay.
type HistoricalData struct {
	Exchange    string       `yaml:"exchange"`
	Interval    string       `yaml:"interval"`
	FromDate    string       `yaml:"from_date"`
	ToDate      string       `yaml:"to_date"`
	Instruments []Instrument `yaml:"instruments"`
}

// Instrument is one tradable symbol.
type Instrument struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// BacktestConfig controls batch execution.
type BacktestConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADESIM_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("TRADESIM_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("TRADESIM_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backtest.MaxWorkers = n
		}
	}
}

// applyDefaults fills optional fields left empty by the file.
func applyDefaults(cfg *Config) {
	if cfg.Storage.BarFormat == "" {
		cfg.Storage.BarFormat = "parquet"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Session.MarketClose == "" {
		cfg.Session.MarketClose = "15:30"
	}
	if cfg.Session.SquareOffLeadMin == 0 {
		cfg.Session.SquareOffLeadMin = 30
	}
	if cfg.Session.NoNewBuysLeadMin == 0 {
		cfg.Session.NoNewBuysLeadMin = 60
	}
	if cfg.Trade.Leverage == 0 {
		cfg.Trade.Leverage = 1
	}
	if cfg.Trade.ATRMultiplier == 0 {
		cfg.Trade.ATRMultiplier = 1
	}
	if cfg.Backtest.MaxWorkers <= 0 {
		cfg.Backtest.MaxWorkers = 1
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports the first missing or invalid field as a
// *domain.ConfigError. Charge rate tables are validated by the charges
// package when the calculator is built.
func (c *Config) Validate() error {
	switch c.Storage.BarFormat {
	case "parquet", "csv":
	default:
		return &domain.ConfigError{Field: "storage.bar_format", Msg: fmt.Sprintf("unsupported format %q", c.Storage.BarFormat)}
	}
	if c.Storage.DataDir == "" {
		return &domain.ConfigError{Field: "storage.data_dir", Msg: "required"}
	}
	if c.Trade.InitialCapital <= 0 {
		return &domain.ConfigError{Field: "trade.initial_capital", Msg: "must be positive"}
	}
	if c.Trade.TradeAllocation <= 0 || c.Trade.TradeAllocation > 1 {
		return &domain.ConfigError{Field: "trade.trade_allocation", Msg: "must be in (0, 1]"}
	}
	if c.Trade.Leverage < 1 {
		return &domain.ConfigError{Field: "trade.leverage", Msg: "must be >= 1"}
	}
	if c.Trade.TargetProfitPercentage <= 0 {
		return &domain.ConfigError{Field: "trade.target_profit_percentage", Msg: "must be positive"}
	}
	if c.Trade.ATRMultiplier <= 0 {
		return &domain.ConfigError{Field: "trade.atr_multiplier", Msg: "must be positive"}
	}
	if len(c.Charges) == 0 {
		return &domain.ConfigError{Field: "charges", Msg: "required"}
	}
	if c.HistoricalData.Interval == "" {
		return &domain.ConfigError{Field: "historical_data.interval", Msg: "required"}
	}
	if _, _, err := c.HistoricalData.Range(); err != nil {
		return err
	}
	if len(c.HistoricalData.Instruments) == 0 {
		return &domain.ConfigError{Field: "historical_data.instruments", Msg: "at least one instrument is required"}
	}
	for i, in := range c.HistoricalData.Instruments {
		if in.Name == "" {
			return &domain.ConfigError{Field: fmt.Sprintf("historical_data.instruments[%d].name", i), Msg: "required"}
		}
	}
	return nil
}

// Range parses the from/to dates. The end is inclusive of the whole to-date.
func (h HistoricalData) Range() (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, h.FromDate)
	if err != nil {
		return time.Time{}, time.Time{}, &domain.ConfigError{Field: "historical_data.from_date", Msg: err.Error()}
	}
	to, err := time.Parse(dateLayout, h.ToDate)
	if err != nil {
		return time.Time{}, time.Time{}, &domain.ConfigError{Field: "historical_data.to_date", Msg: err.Error()}
	}
	if to.Before(start) {
		return time.Time{}, time.Time{}, &domain.ConfigError{Field: "historical_data.to_date", Msg: "before from_date"}
	}
	return start, to.Add(24*time.Hour - time.Millisecond), nil
}

// SquareOffLead returns the square-off lead as a duration.
func (s Session) SquareOffLead() time.Duration {
	return time.Duration(s.SquareOffLeadMin) * time.Minute
}

// NoNewBuysLead returns the no-new-buys lead as a duration.
func (s Session) NoNewBuysLead() time.Duration {
	return time.Duration(s.NoNewBuysLeadMin) * time.Minute
}
