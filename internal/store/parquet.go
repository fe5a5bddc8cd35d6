package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradesim/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for an annotated bar. Timestamps hold the
// exchange wall clock encoded as if it were UTC.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	ATR        float64 `parquet:"atr"`
	BuySignal  bool    `parquet:"buy_signal"`
	SellSignal bool    `parquet:"sell_signal"`
}

// WriteBars writes bars to Parquet files grouped by symbol and year, merging
// with any existing file. Each group lands at:
//
//	<DataDir>/<interval>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(ctx context.Context, interval string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.Year()}
		groups[k] = append(groups[k], toRecord(b))
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.barPath(k.symbol, interval, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars from the year files covering [start, end].
func (s *ParquetStore) ReadBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.barPath(symbol, interval, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			b := fromRecord(r)
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			bars = append(bars, b)
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// ListSymbols lists all symbols that have bar data for the interval.
func (s *ParquetStore) ListSymbols(_ context.Context, interval string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, interval))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<interval>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, interval string, year int) string {
	return filepath.Join(s.DataDir, interval, strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

func toRecord(b domain.Bar) BarRecord {
	// Re-read the wall clock as UTC so the stored instant is zone-independent.
	ts := b.Timestamp
	wall := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
	return BarRecord{
		Symbol:     strings.ToUpper(b.Symbol),
		Timestamp:  wall.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		ATR:        b.ATR,
		BuySignal:  b.BuySignal,
		SellSignal: b.SellSignal,
	}
}

func fromRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		ATR:        r.ATR,
		BuySignal:  r.BuySignal,
		SellSignal: r.SellSignal,
	}
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
