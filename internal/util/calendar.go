package util

import (
	"fmt"
	"time"
)

// Default session boundaries for the cash equity market.
const (
	DefaultMarketClose   = "15:30"
	DefaultSquareOffLead = 30 * time.Minute
	DefaultNoNewBuysLead = 60 * time.Minute
)

// Window holds the intraday deadlines for one trading day.
type Window struct {
	MarketClose time.Time
	SquareOff   time.Time
	NoNewBuys   time.Time
}

// TradingCalendar derives the per-day trading deadlines from a bar
// timestamp. It carries no state besides its configuration.
type TradingCalendar struct {
	closeHour     int
	closeMinute   int
	squareOffLead time.Duration
	noNewBuysLead time.Duration
}

// NewTradingCalendar creates a TradingCalendar closing at marketClose
// ("HH:MM"). Zero leads fall back to the defaults.
func NewTradingCalendar(marketClose string, squareOffLead, noNewBuysLead time.Duration) (*TradingCalendar, error) {
	if marketClose == "" {
		marketClose = DefaultMarketClose
	}
	t, err := time.Parse("15:04", marketClose)
	if err != nil {
		return nil, fmt.Errorf("parsing market close %q: %w", marketClose, err)
	}
	if squareOffLead <= 0 {
		squareOffLead = DefaultSquareOffLead
	}
	if noNewBuysLead <= 0 {
		noNewBuysLead = DefaultNoNewBuysLead
	}
	return &TradingCalendar{
		closeHour:     t.Hour(),
		closeMinute:   t.Minute(),
		squareOffLead: squareOffLead,
		noNewBuysLead: noNewBuysLead,
	}, nil
}

// DefaultCalendar returns a calendar closing at 15:30 with 30/60 minute leads.
func DefaultCalendar() *TradingCalendar {
	return &TradingCalendar{
		closeHour:     15,
		closeMinute:   30,
		squareOffLead: DefaultSquareOffLead,
		noNewBuysLead: DefaultNoNewBuysLead,
	}
}

// Window returns the deadlines for the calendar day of t, in t's location.
func (tc *TradingCalendar) Window(t time.Time) Window {
	y, m, d := t.Date()
	closeAt := time.Date(y, m, d, tc.closeHour, tc.closeMinute, 0, 0, t.Location())
	return Window{
		MarketClose: closeAt,
		SquareOff:   closeAt.Add(-tc.squareOffLead),
		NoNewBuys:   closeAt.Add(-tc.noNewBuysLead),
	}
}

// TradingDay truncates t to midnight of its calendar day.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
