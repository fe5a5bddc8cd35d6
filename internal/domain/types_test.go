package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.BuySignal || bar.SellSignal {
		t.Error("expected no signals on zero-value Bar")
	}

	// Verify enum constants are defined correctly.
	if SideBuy != "BUY" || SideSell != "SELL" {
		t.Errorf("Side constants = %q/%q, want BUY/SELL", SideBuy, SideSell)
	}
	if TradeSquareOff != "Square Off" {
		t.Errorf("TradeSquareOff = %q, want %q", TradeSquareOff, "Square Off")
	}

	pos := Position{ID: 1, Shares: 100, EntryPrice: 250}
	if pos.Shares != 100 {
		t.Errorf("pos.Shares = %d, want 100", pos.Shares)
	}
}

func TestTradeTypeCompleted(t *testing.T) {
	tests := []struct {
		typ  TradeType
		want bool
	}{
		{TradeBuy, false},
		{TradeSell, true},
		{TradeSquareOff, true},
	}
	for _, tt := range tests {
		if got := tt.typ.Completed(); got != tt.want {
			t.Errorf("%q.Completed() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestErrorsCarryContext(t *testing.T) {
	ts := time.Date(2024, 3, 5, 9, 20, 0, 0, time.UTC)

	var err error = &DataError{Symbol: "INFY", Time: ts, Msg: "non-finite close"}
	if !strings.Contains(err.Error(), "INFY") || !strings.Contains(err.Error(), "2024-03-05 09:20:00") {
		t.Errorf("DataError message missing context: %s", err)
	}

	var de *DataError
	if !errors.As(err, &de) {
		t.Fatal("errors.As failed for *DataError")
	}

	err = &ConfigError{Field: "charges.BUY.STT", Msg: "missing"}
	if got := err.Error(); got != "config charges.BUY.STT: missing" {
		t.Errorf("ConfigError.Error() = %q", got)
	}
}
