// Package engine replays a bar series through the intraday long-only trade
// simulator, tracking lots, capital and free cash.
package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"tradesim/internal/charges"
	"tradesim/internal/domain"
	"tradesim/internal/util"
)

// Params are the trade settings for one run.
type Params struct {
	InitialCapital  float64
	TradeAllocation float64
	Leverage        float64 // defaults to 1
	TargetProfitPct float64
	ATRMultiplier   float64 // defaults to 1
}

// WithDefaults fills unset optional parameters.
func (p Params) WithDefaults() Params {
	if p.Leverage == 0 {
		p.Leverage = 1
	}
	if p.ATRMultiplier == 0 {
		p.ATRMultiplier = 1
	}
	return p
}

// Validate checks the parameters, returning a *domain.ConfigError.
func (p Params) Validate() error {
	switch {
	case !(p.InitialCapital > 0) || math.IsInf(p.InitialCapital, 0):
		return &domain.ConfigError{Field: "trade.initial_capital", Msg: "must be a positive amount"}
	case !(p.TradeAllocation > 0 && p.TradeAllocation <= 1):
		return &domain.ConfigError{Field: "trade.trade_allocation", Msg: "must be in (0, 1]"}
	case !(p.Leverage >= 1) || math.IsInf(p.Leverage, 0):
		return &domain.ConfigError{Field: "trade.leverage", Msg: "must be >= 1"}
	case !(p.TargetProfitPct > 0) || math.IsInf(p.TargetProfitPct, 0):
		return &domain.ConfigError{Field: "trade.target_profit_percentage", Msg: "must be positive"}
	case !(p.ATRMultiplier > 0) || math.IsInf(p.ATRMultiplier, 0):
		return &domain.ConfigError{Field: "trade.atr_multiplier", Msg: "must be positive"}
	}
	return nil
}

// Result is everything one run produces.
type Result struct {
	Symbol   string
	Trades   []domain.TradeEvent
	Missed   []domain.MissedSignal
	Days     []domain.DayCapital
	Rejected []domain.DataError

	InitialCapital  float64
	FinalCapital    float64
	TotalProfitLoss float64
	TotalRevenue    float64
	TotalCost       float64
	FreeCash        float64
	OpenShares      int64
	OpenPositions   []domain.Position
	Bars            int
}

// Engine runs simulations. It holds only configuration, so one Engine may
// serve sequential runs; concurrent runs each get their own state.
type Engine struct {
	params   Params
	charges  *charges.Calculator
	calendar *util.TradingCalendar
	sizer    *Sizer
	log      *slog.Logger
}

// New validates the parameters and creates an Engine. A nil calendar uses
// the default 15:30 close; a nil logger uses slog.Default().
func New(p Params, calc *charges.Calculator, cal *util.TradingCalendar, logger *slog.Logger) (*Engine, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if calc == nil {
		return nil, &domain.ConfigError{Field: "charges", Msg: "calculator is required"}
	}
	if cal == nil {
		cal = util.DefaultCalendar()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		params:   p,
		charges:  calc,
		calendar: cal,
		sizer:    NewSizer(p.TradeAllocation, p.Leverage),
		log:      logger,
	}, nil
}

// Params returns the effective parameters, defaults applied.
func (e *Engine) Params() Params { return e.params }

// Run folds bars through the simulator. Bars must be in increasing timestamp
// order; offending bars are rejected and recorded in Result.Rejected. The
// context is checked between bars. A *domain.StateInvariantViolation or a
// charges error aborts the run.
func (e *Engine) Run(ctx context.Context, symbol string, bars []domain.Bar) (*Result, error) {
	r := &run{
		Engine:   e,
		symbol:   symbol,
		ledger:   NewLedger(),
		freeCash: e.params.InitialCapital,
		log:      e.log.With("symbol", symbol),
	}
	for i := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.step(bars[i]); err != nil {
			return nil, err
		}
	}
	return r.finish(), nil
}

// ---------------------------------------------------------------------------
// Per-run state
// ---------------------------------------------------------------------------

type run struct {
	*Engine
	symbol string
	log    *slog.Logger

	ledger     *Ledger
	freeCash   float64
	profitLoss float64
	revenue    float64
	cost       float64
	day        time.Time
	dayStart   float64
	last       time.Time
	started    bool
	bars       int
	trades     []domain.TradeEvent
	missed     []domain.MissedSignal
	days       []domain.DayCapital
	rejected   []domain.DataError
}

// capital is total equity. Deriving it keeps capital == initial + P/L exact.
func (r *run) capital() float64 {
	return r.params.InitialCapital + r.profitLoss
}

func (r *run) step(bar domain.Bar) error {
	ts := bar.Timestamp
	if r.started && !ts.After(r.last) {
		r.reject(bar, "timestamp not after previous bar")
		return nil
	}
	r.started = true
	r.last = ts
	r.bars++

	r.rollover(ts)

	if !validPositive(bar.Close) {
		r.reject(bar, "close price is not a positive finite number")
		return nil
	}

	w := r.calendar.Window(ts)

	if !ts.Before(w.SquareOff) {
		for _, id := range r.ledger.OpenIDs() {
			if err := r.exit(id, bar, domain.TradeSquareOff, domain.ReasonSquareOff); err != nil {
				return err
			}
		}
	}

	if bar.BuySignal {
		// Exits below still run on a restricted bar.
		if !ts.Before(w.NoNewBuys) {
			r.miss(bar, domain.ReasonBuyRestricted)
		} else if err := r.enter(bar); err != nil {
			return err
		}
	}

	// A lot opened on this bar is evaluated too.
	for _, id := range r.ledger.OpenIDs() {
		pos, ok := r.ledger.Get(id)
		if !ok {
			continue
		}
		reason := exitReason(bar, pos, w)
		if reason == "" {
			continue
		}
		if err := r.exit(id, bar, domain.TradeSell, reason); err != nil {
			return err
		}
	}

	if r.freeCash < 0 {
		return r.violation(bar, "free cash is negative")
	}
	return nil
}

// rollover closes the previous day's snapshot and resets free cash to
// capital when ts starts a new trading day.
func (r *run) rollover(ts time.Time) {
	day := util.TradingDay(ts)
	if !r.day.IsZero() {
		if day.Equal(r.day) {
			return
		}
		r.days = append(r.days, domain.DayCapital{
			Date:         r.day,
			StartCapital: r.dayStart,
			EndCapital:   r.capital(),
		})
		if n := r.ledger.Len(); n > 0 {
			r.log.Warn("lots carried across day boundary", "lots", n, "day", day.Format("2006-01-02"))
		}
	}
	r.day = day
	r.dayStart = r.capital()
	r.freeCash = r.capital()
	if r.freeCash <= 0 {
		r.log.Warn("account exhausted, no new entries", "capital", r.freeCash, "day", day.Format("2006-01-02"))
		r.freeCash = 0
	}
}

func (r *run) enter(bar domain.Bar) error {
	if !validPositive(bar.ATR) {
		r.reject(bar, "ATR is not a positive finite number; entry skipped")
		return nil
	}

	price := bar.Close
	margin, shares, ok := r.sizer.Size(r.freeCash, price)
	if !ok {
		r.miss(bar, domain.ReasonInsufficientFunds)
		return nil
	}
	if shares <= 0 {
		return nil
	}

	ch, err := r.charges.Compute(price, shares, domain.SideBuy)
	if err != nil {
		return err
	}

	id := r.ledger.Open(domain.Position{
		EntryTime:    bar.Timestamp,
		Shares:       shares,
		EntryPrice:   price,
		BuyCharges:   ch.Total,
		MarginUsed:   margin,
		TargetPrice:  price * (1 + r.params.TargetProfitPct/100),
		TrailingStop: price - bar.ATR*r.params.ATRMultiplier,
	})
	r.freeCash -= margin
	r.cost += float64(shares)*price + ch.Total

	r.trades = append(r.trades, domain.TradeEvent{
		Time:       bar.Timestamp,
		Type:       domain.TradeBuy,
		Reason:     domain.ReasonBuySignal,
		Price:      price,
		Shares:     shares,
		Charges:    ch,
		PositionID: id,
	})
	r.log.Debug("buy", "time", bar.Timestamp, "price", price, "shares", shares, "margin", margin)

	if r.freeCash < 0 {
		return r.violation(bar, "free cash is negative after entry")
	}
	return nil
}

func (r *run) exit(id int, bar domain.Bar, typ domain.TradeType, reason string) error {
	pos, ok := r.ledger.Get(id)
	if !ok {
		return r.violation(bar, "exit of a lot that is not open")
	}
	price := bar.Close
	ch, err := r.charges.Compute(price, pos.Shares, domain.SideSell)
	if err != nil {
		return err
	}
	if _, err := r.ledger.Close(id); err != nil {
		return r.violation(bar, err.Error())
	}

	proceeds := float64(pos.Shares)*price - ch.Total
	basis := float64(pos.Shares)*pos.EntryPrice + pos.BuyCharges
	pl := proceeds - basis

	r.profitLoss += pl
	// Scheduled square-offs realize P/L but are not counted as revenue.
	if typ == domain.TradeSell {
		r.revenue += proceeds
	}
	r.freeCash += pos.MarginUsed + proceeds

	r.trades = append(r.trades, domain.TradeEvent{
		Time:       bar.Timestamp,
		Type:       typ,
		Reason:     reason,
		Price:      price,
		Shares:     pos.Shares,
		ProfitLoss: pl,
		Charges:    ch,
		PositionID: id,
	})
	r.log.Debug("exit", "time", bar.Timestamp, "type", typ, "reason", reason, "price", price, "pl", pl)
	return nil
}

func (r *run) miss(bar domain.Bar, reason string) {
	r.missed = append(r.missed, domain.MissedSignal{
		Time:   bar.Timestamp,
		Price:  bar.Close,
		Reason: reason,
	})
}

func (r *run) reject(bar domain.Bar, msg string) {
	de := domain.DataError{Symbol: r.symbol, Time: bar.Timestamp, Msg: msg}
	r.rejected = append(r.rejected, de)
	r.log.Warn("bar rejected", "time", bar.Timestamp, "error", msg)
}

func (r *run) violation(bar domain.Bar, msg string) error {
	return &domain.StateInvariantViolation{Symbol: r.symbol, Time: bar.Timestamp, Msg: msg}
}

func (r *run) finish() *Result {
	if !r.day.IsZero() {
		r.days = append(r.days, domain.DayCapital{
			Date:         r.day,
			StartCapital: r.dayStart,
			EndCapital:   r.capital(),
		})
	}

	open := make([]domain.Position, 0, r.ledger.Len())
	for _, id := range r.ledger.OpenIDs() {
		p, _ := r.ledger.Get(id)
		open = append(open, p)
	}

	return &Result{
		Symbol:          r.symbol,
		Trades:          r.trades,
		Missed:          r.missed,
		Days:            r.days,
		Rejected:        r.rejected,
		InitialCapital:  r.params.InitialCapital,
		FinalCapital:    r.capital(),
		TotalProfitLoss: r.profitLoss,
		TotalRevenue:    r.revenue,
		TotalCost:       r.cost,
		FreeCash:        r.freeCash,
		OpenShares:      r.ledger.Shares(),
		OpenPositions:   open,
		Bars:            r.bars,
	}
}

// exitReason returns the first matching exit condition for pos on bar, or
// "" when the lot stays open. The order is the exit priority.
func exitReason(bar domain.Bar, pos domain.Position, w util.Window) string {
	switch {
	case bar.SellSignal:
		return domain.ReasonSellSignal
	case bar.Close >= pos.TargetPrice:
		return domain.ReasonTargetProfit
	case bar.Close <= pos.TrailingStop:
		return domain.ReasonTrailingStop
	case !bar.Timestamp.Before(w.SquareOff):
		// Normally unreachable: the scheduled square-off already emptied
		// the ledger for this bar.
		return domain.ReasonSquareOff
	}
	return ""
}

func validPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
