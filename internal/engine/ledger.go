package engine

import (
	"math"
	"sort"
	"sync"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// qtyEpsilon absorbs float noise when deciding whether a position is flat
// or whether local and broker sizes agree.
const qtyEpsilon = 1e-9

// Ledger is the engine's in-memory view of open positions. It is advisory:
// the broker's reported positions are authoritative, and the reconciler
// overwrites the ledger on conflict. Safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]domain.Position)}
}

// Get returns the position for symbol, if any.
func (l *Ledger) Get(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Set overwrites the position for its symbol.
func (l *Ledger) Set(p domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[p.Symbol] = p
}

// Remove deletes the position for symbol.
func (l *Ledger) Remove(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, symbol)
}

// Snapshot returns all open positions sorted by symbol.
func (l *Ledger) Snapshot() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns the symbols with an open position.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ApplyFill folds one filled (or partially filled) order result into the
// ledger. Buys increase the net size, sells decrease it; the average entry
// price is volume-weighted while the position grows and untouched while it
// shrinks. A position whose net size reaches zero is removed. It returns
// the realized P&L of any closed quantity.
func (l *Ledger) ApplyFill(res domain.OrderResult, side domain.Side, tag string) float64 {
	if res.FilledQty <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delta := res.FilledQty
	if side == domain.SideSell {
		delta = -delta
	}

	p, ok := l.positions[res.Symbol]
	if !ok {
		l.positions[res.Symbol] = domain.Position{
			Symbol:        res.Symbol,
			Qty:           delta,
			AvgEntryPrice: res.FilledPrice,
			OpenedAt:      res.Timestamp,
			Tag:           tag,
		}
		return 0
	}

	var realized float64
	newQty := p.Qty + delta

	switch {
	case sameSign(p.Qty, delta):
		// Growing: re-weight the entry price.
		p.AvgEntryPrice = (p.AvgEntryPrice*math.Abs(p.Qty) + res.FilledPrice*math.Abs(delta)) / math.Abs(newQty)
	case math.Abs(delta) <= math.Abs(p.Qty)+qtyEpsilon:
		// Shrinking or closing: realize P&L on the closed quantity.
		closed := math.Abs(delta)
		if p.Qty > 0 {
			realized = (res.FilledPrice - p.AvgEntryPrice) * closed
		} else {
			realized = (p.AvgEntryPrice - res.FilledPrice) * closed
		}
	default:
		// Reversing through zero: close the old side, open the new one.
		closed := math.Abs(p.Qty)
		if p.Qty > 0 {
			realized = (res.FilledPrice - p.AvgEntryPrice) * closed
		} else {
			realized = (p.AvgEntryPrice - res.FilledPrice) * closed
		}
		p.AvgEntryPrice = res.FilledPrice
		p.OpenedAt = res.Timestamp
	}

	if math.Abs(newQty) <= qtyEpsilon {
		delete(l.positions, res.Symbol)
		return realized
	}
	p.Qty = newQty
	l.positions[res.Symbol] = p
	return realized
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
