package util

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, nil, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, nil, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("constraint failed")
	attempts := 0

	err := Retry(context.Background(), 5, 0, func(err error) bool {
		return !errors.Is(err, permanent)
	}, func() error {
		attempts++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("Retry error = %v, want %v", err, permanent)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestTradingCalendarWindow(t *testing.T) {
	cal := DefaultCalendar()
	ts := time.Date(2024, 5, 10, 9, 20, 0, 0, time.UTC)

	w := cal.Window(ts)
	want := map[string]time.Time{
		"MarketClose": time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC),
		"SquareOff":   time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC),
		"NoNewBuys":   time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC),
	}
	got := map[string]time.Time{
		"MarketClose": w.MarketClose,
		"SquareOff":   w.SquareOff,
		"NoNewBuys":   w.NoNewBuys,
	}
	for k, v := range want {
		if !got[k].Equal(v) {
			t.Errorf("%s = %s, want %s", k, got[k], v)
		}
	}
}

func TestTradingCalendarCustomClose(t *testing.T) {
	cal, err := NewTradingCalendar("16:00", 15*time.Minute, 0)
	if err != nil {
		t.Fatalf("NewTradingCalendar: %v", err)
	}
	w := cal.Window(time.Date(2024, 5, 10, 23, 59, 0, 0, time.UTC))
	if w.SquareOff.Hour() != 15 || w.SquareOff.Minute() != 45 {
		t.Errorf("SquareOff = %s, want 15:45", w.SquareOff.Format("15:04"))
	}
	if w.NoNewBuys.Hour() != 15 || w.NoNewBuys.Minute() != 0 {
		t.Errorf("NoNewBuys = %s, want 15:00 (default lead)", w.NoNewBuys.Format("15:04"))
	}
}

func TestTradingCalendarBadClose(t *testing.T) {
	if _, err := NewTradingCalendar("3pm", 0, 0); err == nil {
		t.Fatal("NewTradingCalendar should reject a malformed close time")
	}
}

func TestTradingDay(t *testing.T) {
	got := TradingDay(time.Date(2024, 5, 10, 14, 59, 59, 0, time.UTC))
	want := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("TradingDay = %s, want %s", got, want)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "debug", "json").Debug("hello", "k", 1)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json logger output = %q, want JSON object", buf.String())
	}

	buf.Reset()
	NewLoggerTo(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("warn-level logger emitted info record: %q", buf.String())
	}
}
