// Package domain defines the core types shared across the tradesim
// backtester: input bars, open lots, trade events and capital snapshots.
package domain

import "time"

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// Bar is one OHLCV interval with the precomputed indicator and signal values
// the simulator consumes. Timestamps are naive wall-clock values; the
// location carried by time.Time is only used to anchor the trading day.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	ATR        float64
	BuySignal  bool
	SellSignal bool
}

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// Side is the direction a charge is computed for.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeType classifies a trade event.
type TradeType string

const (
	TradeBuy       TradeType = "Buy"
	TradeSell      TradeType = "Sell"
	TradeSquareOff TradeType = "Square Off"
)

// Completed reports whether the event closes a lot.
func (t TradeType) Completed() bool {
	return t == TradeSell || t == TradeSquareOff
}

// Reason codes attached to trade and missed-signal events.
const (
	ReasonBuySignal         = "Buy Signal"
	ReasonSellSignal        = "Sell Signal Triggered"
	ReasonTargetProfit      = "Target Profit Reached"
	ReasonTrailingStop      = "Trailing Stop-Loss Triggered"
	ReasonSquareOff         = "Square Off Before Market Close"
	ReasonBuyRestricted     = "Buy restricted near market close"
	ReasonInsufficientFunds = "Insufficient Funds"
)

// ---------------------------------------------------------------------------
// Ledger and events
// ---------------------------------------------------------------------------

// Position is one open long lot. Lots are never averaged together.
type Position struct {
	ID           int
	EntryTime    time.Time
	Shares       int64
	EntryPrice   float64
	BuyCharges   float64
	MarginUsed   float64
	TargetPrice  float64
	TrailingStop float64
}

// Charges is the itemised cost of a single fill.
type Charges struct {
	Total             float64
	Brokerage         float64
	STT               float64
	TransactionCharge float64
	SEBICharge        float64
	GST               float64
	StampDuty         float64
}

// TradeEvent is one fill produced by the simulator.
type TradeEvent struct {
	Time       time.Time
	Type       TradeType
	Reason     string
	Price      float64
	Shares     int64
	ProfitLoss float64
	Charges    Charges
	PositionID int
}

// MissedSignal records a buy signal that did not result in an entry.
type MissedSignal struct {
	Time   time.Time
	Price  float64
	Reason string
}

// DayCapital is the capital at the start and end of one trading day.
type DayCapital struct {
	Date         time.Time
	StartCapital float64
	EndCapital   float64
}
