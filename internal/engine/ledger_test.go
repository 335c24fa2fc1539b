package engine

import (
	"math"
	"testing"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

func fill(symbol string, qty, price float64) domain.OrderResult {
	return domain.OrderResult{
		CorrelationID: "ord",
		Symbol:        symbol,
		Status:        domain.OrderStatusFilled,
		FilledQty:     qty,
		FilledPrice:   price,
		Timestamp:     time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC),
	}
}

func TestLedgerOpenAndGrow(t *testing.T) {
	l := NewLedger()

	if realized := l.ApplyFill(fill("AAPL", 10, 100), domain.SideBuy, "tag"); realized != 0 {
		t.Errorf("opening fill realized %v, want 0", realized)
	}
	p, ok := l.Get("AAPL")
	if !ok || p.Qty != 10 || p.AvgEntryPrice != 100 {
		t.Fatalf("position = %+v, want qty 10 @ 100", p)
	}

	// Adding re-weights the entry: (10*100 + 10*110) / 20 = 105.
	l.ApplyFill(fill("AAPL", 10, 110), domain.SideBuy, "tag")
	p, _ = l.Get("AAPL")
	if p.Qty != 20 || math.Abs(p.AvgEntryPrice-105) > 1e-9 {
		t.Errorf("position = %+v, want qty 20 @ 105", p)
	}
}

func TestLedgerPartialCloseRealizesPnL(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(fill("AAPL", 10, 100), domain.SideBuy, "tag")

	realized := l.ApplyFill(fill("AAPL", 4, 110), domain.SideSell, "tag")
	if math.Abs(realized-40) > 1e-9 {
		t.Errorf("realized = %v, want 40 (4 units, +10 each)", realized)
	}

	// Entry price unchanged while shrinking.
	p, ok := l.Get("AAPL")
	if !ok || p.Qty != 6 || p.AvgEntryPrice != 100 {
		t.Errorf("position = %+v, want qty 6 @ 100", p)
	}
}

func TestLedgerFullCloseRemoves(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(fill("AAPL", 10, 100), domain.SideBuy, "tag")

	realized := l.ApplyFill(fill("AAPL", 10, 95), domain.SideSell, "tag")
	if math.Abs(realized-(-50)) > 1e-9 {
		t.Errorf("realized = %v, want -50", realized)
	}
	if _, ok := l.Get("AAPL"); ok {
		t.Error("position not removed after closing to zero")
	}
}

func TestLedgerShortPosition(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(fill("AAPL", 10, 100), domain.SideSell, "tag")

	p, ok := l.Get("AAPL")
	if !ok || p.Qty != -10 {
		t.Fatalf("position = %+v, want qty -10", p)
	}

	// Covering below entry is profit for a short.
	realized := l.ApplyFill(fill("AAPL", 10, 90), domain.SideBuy, "tag")
	if math.Abs(realized-100) > 1e-9 {
		t.Errorf("realized = %v, want 100", realized)
	}
	if _, ok := l.Get("AAPL"); ok {
		t.Error("short position not removed after covering")
	}
}

func TestLedgerReversalThroughZero(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(fill("AAPL", 10, 100), domain.SideBuy, "tag")

	// Selling 15 closes the 10 long (+5 each) and opens a 5 short at 105.
	realized := l.ApplyFill(fill("AAPL", 15, 105), domain.SideSell, "tag")
	if math.Abs(realized-50) > 1e-9 {
		t.Errorf("realized = %v, want 50", realized)
	}
	p, ok := l.Get("AAPL")
	if !ok || p.Qty != -5 || p.AvgEntryPrice != 105 {
		t.Errorf("position = %+v, want qty -5 @ 105", p)
	}
}

func TestLedgerSnapshotSorted(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(fill("MSFT", 1, 400), domain.SideBuy, "tag")
	l.ApplyFill(fill("AAPL", 1, 100), domain.SideBuy, "tag")

	snap := l.Snapshot()
	if len(snap) != 2 || snap[0].Symbol != "AAPL" || snap[1].Symbol != "MSFT" {
		t.Errorf("snapshot = %+v, want sorted [AAPL MSFT]", snap)
	}
}

func TestLedgerIgnoresZeroFill(t *testing.T) {
	l := NewLedger()
	l.ApplyFill(fill("AAPL", 0, 100), domain.SideBuy, "tag")
	if len(l.Snapshot()) != 0 {
		t.Error("zero-quantity fill created a position")
	}
}
