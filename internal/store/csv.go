package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/domain"
)

var _ BarStore = (*CSVStore)(nil)

// csvHeader is the column order written by WriteBars. ReadBars locates
// columns by name, so files may carry extra columns in any order.
var csvHeader = []string{"timestamp", "open", "close", "high", "low", "volume", "ATR", "Buy_Signal", "Sell_Signal"}

// CSVStore implements BarStore over one CSV file per symbol:
//
//	<Dir>/<interval>/<SYMBOL>.csv
type CSVStore struct {
	Dir string
}

// NewCSVStore creates a CSVStore rooted at dir.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{Dir: dir}
}

func (s *CSVStore) path(symbol, interval string) string {
	return filepath.Join(s.Dir, interval, strings.ToUpper(symbol)+".csv")
}

// ReadBars parses the symbol's file and returns rows within [start, end]
// sorted by timestamp. A missing file yields no bars. An empty numeric cell
// reads as NaN so the simulator can reject the bar.
func (s *CSVStore) ReadBars(_ context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := s.readAll(symbol, interval)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// WriteBars merges bars into each symbol's file, replacing rows with equal
// timestamps.
func (s *CSVStore) WriteBars(_ context.Context, interval string, bars []domain.Bar) error {
	bySymbol := make(map[string][]domain.Bar)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		bySymbol[sym] = append(bySymbol[sym], b)
	}

	for sym, incoming := range bySymbol {
		existing, err := s.readAll(sym, interval)
		if err != nil {
			return err
		}
		seen := make(map[int64]domain.Bar, len(existing)+len(incoming))
		for _, b := range existing {
			seen[b.Timestamp.UnixMilli()] = b
		}
		for _, b := range incoming {
			seen[b.Timestamp.UnixMilli()] = b
		}
		merged := make([]domain.Bar, 0, len(seen))
		for _, b := range seen {
			merged = append(merged, b)
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })

		if err := s.writeFile(s.path(sym, interval), merged); err != nil {
			return fmt.Errorf("writing bars for %s: %w", sym, err)
		}
	}
	return nil
}

// ListSymbols returns the file stems under the interval directory.
func (s *CSVStore) ListSymbols(_ context.Context, interval string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, interval))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(e.Name(), ".csv"))
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *CSVStore) readAll(symbol, interval string) ([]domain.Bar, error) {
	path := s.path(symbol, interval)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: reading header: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"timestamp", "close"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, need)
		}
	}

	sym := strings.ToUpper(symbol)
	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		b, err := parseRow(sym, rec, cols)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func parseRow(symbol string, rec []string, cols map[string]int) (domain.Bar, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ts, err := parseTime(cell("timestamp"))
	if err != nil {
		return domain.Bar{}, err
	}
	b := domain.Bar{Symbol: symbol, Timestamp: ts}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"close", &b.Close},
		{"atr", &b.ATR},
	}
	for _, f := range floats {
		v, err := parseFloat(cell(f.name))
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column %s: %w", f.name, err)
		}
		*f.dst = v
	}

	if v := cell("volume"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column volume: %w", err)
		}
		b.Volume = int64(n)
	}
	if b.BuySignal, err = parseBool(cell("buy_signal")); err != nil {
		return domain.Bar{}, fmt.Errorf("column Buy_Signal: %w", err)
	}
	if b.SellSignal, err = parseBool(cell("sell_signal")); err != nil {
		return domain.Bar{}, fmt.Errorf("column Sell_Signal: %w", err)
	}
	return b, nil
}

var timeLayouts = []string{
	timeLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04",
}

// parseTime keeps the wall clock of zoned inputs and drops the offset.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "f", "no":
		return false, nil
	case "1", "true", "t", "yes":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func (s *CSVStore) writeFile(path string, bars []domain.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		if err := w.Write([]string{
			b.Timestamp.Format(timeLayout),
			formatF(b.Open), formatF(b.Close), formatF(b.High), formatF(b.Low),
			strconv.FormatInt(b.Volume, 10),
			formatF(b.ATR),
			strconv.FormatBool(b.BuySignal), strconv.FormatBool(b.SellSignal),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func formatF(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
