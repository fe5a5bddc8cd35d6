// Package summary reduces engine results into the per-instrument final
// summary, the daily capital table and the batch performance table.
package summary

import (
	"math"

	"github.com/shopspring/decimal"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/engine"
)

// Meta is run metadata echoed into the summary. It has no effect on the
// simulation.
type Meta struct {
	Instrument string
	Token      string
	Exchange   string
	Interval   string
	FromDate   string
	ToDate     string
	Indicators config.IndicatorConfig
}

// FinalSummary is the closing record of one instrument's run.
type FinalSummary struct {
	Meta

	InitialCapital  float64
	FinalCapital    float64
	TotalProfitLoss float64
	TotalRevenue    float64
	TotalCost       float64
	OpenShares      int64 // shares still held when the bars ran out

	Leverage        float64
	TradeAllocation float64
	TargetProfitPct float64
	ATRMultiplier   float64

	Buys          int
	Completed     int // Sell + Square Off events
	Wins          int
	WinRate       float64 // percent, 2 dp
	MissedSignals int
	RejectedBars  int
	TradingDays   int
}

// Summarize builds the FinalSummary for res, run with params p.
func Summarize(res *engine.Result, p engine.Params, meta Meta) FinalSummary {
	wins, completed := countWins(res.Trades)
	buys := 0
	for _, t := range res.Trades {
		if t.Type == domain.TradeBuy {
			buys++
		}
	}
	if meta.Instrument == "" {
		meta.Instrument = res.Symbol
	}

	return FinalSummary{
		Meta:            meta,
		InitialCapital:  Round2(res.InitialCapital),
		FinalCapital:    Round2(res.FinalCapital),
		TotalProfitLoss: Round2(res.TotalProfitLoss),
		TotalRevenue:    Round2(res.TotalRevenue),
		TotalCost:       Round2(res.TotalCost),
		OpenShares:      res.OpenShares,
		Leverage:        p.Leverage,
		TradeAllocation: p.TradeAllocation,
		TargetProfitPct: p.TargetProfitPct,
		ATRMultiplier:   p.ATRMultiplier,
		Buys:            buys,
		Completed:       completed,
		Wins:            wins,
		WinRate:         Round2(WinRate(res.Trades) * 100),
		MissedSignals:   len(res.Missed),
		RejectedBars:    len(res.Rejected),
		TradingDays:     len(res.Days),
	}
}

// WinRate is the fraction of completed trades (Sell and Square Off) with a
// positive profit. It is 0 when nothing completed.
func WinRate(trades []domain.TradeEvent) float64 {
	wins, completed := countWins(trades)
	if completed == 0 {
		return 0
	}
	return float64(wins) / float64(completed)
}

func countWins(trades []domain.TradeEvent) (wins, completed int) {
	for _, t := range trades {
		if !t.Type.Completed() {
			continue
		}
		completed++
		if t.ProfitLoss > 0 {
			wins++
		}
	}
	return wins, completed
}

// DayRow is one line of the daily capital table.
type DayRow struct {
	Date         string
	StartCapital float64
	EndCapital   float64
	ProfitLoss   float64
}

// Daily converts day snapshots into rounded table rows.
func Daily(days []domain.DayCapital) []DayRow {
	rows := make([]DayRow, 0, len(days))
	for _, d := range days {
		pl := decFromFloat(d.EndCapital).Sub(decFromFloat(d.StartCapital))
		rows = append(rows, DayRow{
			Date:         d.Date.Format("2006-01-02"),
			StartCapital: Round2(d.StartCapital),
			EndCapital:   Round2(d.EndCapital),
			ProfitLoss:   pl.Round(2).InexactFloat64(),
		})
	}
	return rows
}

// Row is one instrument in the batch performance table.
type Row struct {
	Name       string
	ProfitLoss float64
	WinRate    float64 // percent
}

// BatchTable is the performance table across all instruments in a batch.
type BatchTable struct {
	Rows          []Row
	TotalNetPL    float64
	TotalTrades   int
	OverallWinPct float64
}

// Batch tabulates per-instrument summaries in the given order. Totals are
// summed in decimal so the table adds up after rounding.
func Batch(summaries []FinalSummary) BatchTable {
	t := BatchTable{Rows: make([]Row, 0, len(summaries))}
	total := decimal.Zero
	wins := 0
	for _, s := range summaries {
		t.Rows = append(t.Rows, Row{
			Name:       s.Instrument,
			ProfitLoss: s.TotalProfitLoss,
			WinRate:    s.WinRate,
		})
		total = total.Add(decFromFloat(s.TotalProfitLoss))
		t.TotalTrades += s.Completed
		wins += s.Wins
	}
	t.TotalNetPL = total.Round(2).InexactFloat64()
	if t.TotalTrades > 0 {
		t.OverallWinPct = Round2(100 * float64(wins) / float64(t.TotalTrades))
	}
	return t
}

// Round2 rounds v half away from zero to two decimal places. Non-finite
// values are returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
