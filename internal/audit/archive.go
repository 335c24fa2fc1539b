package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// BarArchive persists every bar the engine fetched to Parquet files for
// post-run analysis and dry-run parity checks.
// Layout: <dir>/<SYMBOL>/<YYYY-MM-DD>.parquet
type BarArchive struct {
	Dir string
}

// NewBarArchive creates an archive rooted at dir.
func NewBarArchive(dir string) *BarArchive {
	return &BarArchive{Dir: dir}
}

// barRecord is the Parquet on-disk schema.
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// WriteBars merges the given bars into the archive, deduplicating by
// timestamp within each symbol/day file. Re-archiving the same cycle's bars
// is a no-op, so crashed-and-restarted runs do not corrupt the archive.
func (a *BarArchive) WriteBars(bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		date   string // YYYY-MM-DD
	}
	groups := make(map[key][]barRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, date: b.Timestamp.UTC().Format("2006-01-02")}
		groups[k] = append(groups[k], barRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := a.barPath(k.symbol, k.date)

		// Read existing records to merge; a missing file is an empty day.
		existing, _ := readParquetFile[barRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("archiving bars for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadDay returns the archived bars for one symbol and date (YYYY-MM-DD),
// oldest first.
func (a *BarArchive) ReadDay(symbol, date string) ([]domain.Bar, error) {
	records, err := readParquetFile[barRecord](a.barPath(symbol, date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.Bar{
			Symbol:    r.Symbol,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

// barPath returns the archive file path for a symbol and date.
func (a *BarArchive) barPath(symbol, date string) string {
	return filepath.Join(a.Dir, strings.ToUpper(symbol), date+".parquet")
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
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates records by timestamp, preferring incoming over
// existing. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []barRecord) []barRecord {
	seen := make(map[int64]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
