// Package builtins provides built-in strategy implementations.
package builtins

import (
	"context"
	"fmt"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It emits an
// entry buy signal when the short-period SMA crosses above the long-period
// SMA, and an exit sell signal when it crosses below. State is per symbol;
// signal ids are derived from symbol and bar timestamp so identical inputs
// produce identical signals.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	qty         float64 // requested size per signal, pre-risk

	closes    map[string][]float64
	wasAbove  map[string]bool
	everCross map[string]bool
}

// NewSMACross creates an SMACross with the given short and long periods and
// the per-signal requested quantity.
func NewSMACross(short, long int, qty float64) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		qty:         qty,
		closes:      make(map[string][]float64),
		wasAbove:    make(map[string]bool),
		everCross:   make(map[string]bool),
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string { return "sma-cross" }

// Init validates the configured periods.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod <= 0 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross: need 0 < short < long, got %d/%d", s.shortPeriod, s.longPeriod)
	}
	if s.qty <= 0 {
		return fmt.Errorf("sma-cross: qty must be positive, got %v", s.qty)
	}
	return nil
}

// OnBar appends each bar's close to the symbol's history and emits a signal
// on crossover once enough data has accumulated.
func (s *SMACross) OnBar(_ context.Context, now time.Time, bars map[string]domain.Bar) ([]domain.Signal, error) {
	var signals []domain.Signal

	for symbol, bar := range bars {
		history := append(s.closes[symbol], bar.Close)
		if len(history) > s.longPeriod {
			history = history[len(history)-s.longPeriod:]
		}
		s.closes[symbol] = history

		if len(history) < s.longPeriod {
			continue
		}

		short := sma(history[len(history)-s.shortPeriod:])
		long := sma(history)
		above := short > long

		prev, tracked := s.wasAbove[symbol], s.everCross[symbol]
		s.wasAbove[symbol] = above
		s.everCross[symbol] = true
		if !tracked || above == prev {
			continue
		}

		sig := domain.Signal{
			ID:         fmt.Sprintf("sma-%s-%d", symbol, bar.Timestamp.Unix()),
			StrategyID: s.Name(),
			Symbol:     symbol,
			Kind:       domain.OrderKindMarket,
			Qty:        s.qty,
			CreatedAt:  now,
		}
		if above {
			sig.Side = domain.SideBuy
			sig.Action = domain.ActionEntry
		} else {
			sig.Side = domain.SideSell
			sig.Action = domain.ActionExit
		}
		signals = append(signals, sig)
	}

	return signals, nil
}

func sma(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
