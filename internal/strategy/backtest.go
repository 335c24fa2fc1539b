package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// BacktestResult holds the summary metrics produced by a backtest run.
type BacktestResult struct {
	TotalReturn float64
	MaxDrawdown float64
	TotalTrades int
	WinRate     float64
	FinalEquity float64
	EquityCurve []float64

	wins int
}

// Backtester replays archived bar data through a strategy and simulates
// fills at the signal bar's close. It is an offline analysis tool; nothing
// in the live path depends on it.
type Backtester struct {
	archive  *audit.BarArchive
	registry *Registry
}

// NewBacktester creates a Backtester reading bars from the given archive and
// looking up strategies in the provided registry.
func NewBacktester(archive *audit.BarArchive, registry *Registry) *Backtester {
	return &Backtester{
		archive:  archive,
		registry: registry,
	}
}

// Run executes a backtest for the named strategy over the specified symbols
// and date range, starting with initialCapital. Bars are replayed in
// timestamp order; buys open or add to a position, sells close it.
func (bt *Backtester) Run(
	ctx context.Context,
	name string,
	symbols []string,
	from, to time.Time,
	initialCapital float64,
) (*BacktestResult, error) {
	strat, ok := bt.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("backtest: unknown strategy %q", name)
	}
	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("backtest: init %q: %w", name, err)
	}

	bars, err := bt.loadBars(symbols, from, to)
	if err != nil {
		return nil, err
	}

	cash := initialCapital
	positions := make(map[string]backtestPosition)
	lastPrice := make(map[string]float64)
	result := &BacktestResult{}
	peak := initialCapital

	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lastPrice[bar.Symbol] = bar.Close

		signals, err := strat.OnBar(ctx, bar.Timestamp, map[string]domain.Bar{bar.Symbol: bar})
		if err != nil {
			return nil, fmt.Errorf("backtest: strategy %q: %w", name, err)
		}

		for _, sig := range signals {
			price := bar.Close
			switch sig.Side {
			case domain.SideBuy:
				cost := sig.Qty * price
				if cost > cash {
					continue // cannot afford, skip
				}
				cash -= cost
				p := positions[sig.Symbol]
				total := p.qty + sig.Qty
				p.avgEntry = (p.avgEntry*p.qty + price*sig.Qty) / total
				p.qty = total
				positions[sig.Symbol] = p
			case domain.SideSell:
				p, held := positions[sig.Symbol]
				if !held || p.qty <= 0 {
					continue
				}
				qty := math.Min(sig.Qty, p.qty)
				cash += qty * price
				result.TotalTrades++
				if price > p.avgEntry {
					result.wins++
				}
				p.qty -= qty
				if p.qty <= 0 {
					delete(positions, sig.Symbol)
				} else {
					positions[sig.Symbol] = p
				}
			}
		}

		equity := cash
		for sym, p := range positions {
			equity += p.qty * lastPrice[sym]
		}
		result.EquityCurve = append(result.EquityCurve, equity)
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
	}

	final := cash
	for sym, p := range positions {
		final += p.qty * lastPrice[sym]
	}
	result.FinalEquity = final
	if initialCapital > 0 {
		result.TotalReturn = (final - initialCapital) / initialCapital
	}
	if result.TotalTrades > 0 {
		result.WinRate = float64(result.wins) / float64(result.TotalTrades)
	}
	return result, nil
}

// loadBars reads the archive for every symbol/day in range and returns the
// bars sorted by timestamp.
func (bt *Backtester) loadBars(symbols []string, from, to time.Time) ([]domain.Bar, error) {
	var all []domain.Bar
	for day := from.UTC().Truncate(24 * time.Hour); !day.After(to); day = day.Add(24 * time.Hour) {
		date := day.Format("2006-01-02")
		for _, sym := range symbols {
			bars, err := bt.archive.ReadDay(sym, date)
			if err != nil {
				return nil, fmt.Errorf("backtest: reading %s/%s: %w", sym, date, err)
			}
			all = append(all, bars...)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

type backtestPosition struct {
	qty      float64
	avgEntry float64
}
