package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/config"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

func testLimits() config.Risk {
	return config.Risk{
		DefaultRiskPct:  0.005,
		StopDistancePct: 0.01,
		MaxPositionSize: 1000,
		MaxDailyTrades:  20,
		MaxDailyLossPct: 0.02,
		LotStep:         0.01,
	}
}

func buySignal(qty float64) domain.Signal {
	return domain.Signal{
		ID:         "sig-1",
		StrategyID: "sma-cross",
		Symbol:     "AAPL",
		Side:       domain.SideBuy,
		Action:     domain.ActionEntry,
		Kind:       domain.OrderKindMarket,
		Qty:        qty,
		CreatedAt:  time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC),
	}
}

func TestEvaluateRiskBudgetCapsSize(t *testing.T) {
	rm := NewRiskManager(testLimits())
	acct := domain.AccountState{Equity: 10_000}

	// Risk budget: 0.5% of $10k = $50/trade. At $100 with a 1% stop the
	// per-unit loss is $1, so the cap is 50 units. An oversized request is
	// down-sized, not rejected.
	req, err := rm.Evaluate(buySignal(500), 100, acct, Counters{}, "algoagent")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if req.Qty != 50 {
		t.Errorf("Qty = %v, want 50", req.Qty)
	}

	worstCase := req.Qty * 100 * 0.01
	if worstCase > 50 {
		t.Errorf("worst-case loss = %v, want <= 50", worstCase)
	}
}

func TestEvaluateRequestBelowCapUnchanged(t *testing.T) {
	rm := NewRiskManager(testLimits())
	acct := domain.AccountState{Equity: 10_000}

	req, err := rm.Evaluate(buySignal(10), 100, acct, Counters{}, "algoagent")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if req.Qty != 10 {
		t.Errorf("Qty = %v, want 10", req.Qty)
	}
	if req.CorrelationID != "sig-1" || req.Tag != "algoagent" {
		t.Errorf("request fields not carried over: %+v", req)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	rm := NewRiskManager(testLimits())
	acct := domain.AccountState{Equity: 10_000}

	a, errA := rm.Evaluate(buySignal(500), 100, acct, Counters{}, "algoagent")
	b, errB := rm.Evaluate(buySignal(500), 100, acct, Counters{}, "algoagent")
	if errA != nil || errB != nil {
		t.Fatalf("Evaluate: %v / %v", errA, errB)
	}
	if a != b {
		t.Errorf("identical inputs produced different requests: %+v vs %+v", a, b)
	}
}

func TestEvaluateMaxPositionSize(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSize = 20
	rm := NewRiskManager(limits)
	acct := domain.AccountState{Equity: 10_000}

	req, err := rm.Evaluate(buySignal(500), 100, acct, Counters{}, "algoagent")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if req.Qty != 20 {
		t.Errorf("Qty = %v, want 20 (max position size)", req.Qty)
	}
}

func TestEvaluateDailyTradeLimit(t *testing.T) {
	rm := NewRiskManager(testLimits())
	acct := domain.AccountState{Equity: 10_000}

	_, err := rm.Evaluate(buySignal(10), 100, acct, Counters{Trades: 20}, "algoagent")
	if !errors.Is(err, ErrDailyTradeLimit) {
		t.Errorf("err = %v, want ErrDailyTradeLimit", err)
	}
}

func TestEvaluateDailyLossLimit(t *testing.T) {
	rm := NewRiskManager(testLimits())
	acct := domain.AccountState{Equity: 10_000}

	// 2% of $10k = $200 loss cap.
	_, err := rm.Evaluate(buySignal(10), 100, acct, Counters{RealizedPnL: -200}, "algoagent")
	if !errors.Is(err, ErrDailyLossLimit) {
		t.Errorf("err = %v, want ErrDailyLossLimit", err)
	}

	// A smaller loss does not trip the limit.
	if _, err := rm.Evaluate(buySignal(10), 100, acct, Counters{RealizedPnL: -199}, "algoagent"); err != nil {
		t.Errorf("err = %v, want approval below the loss cap", err)
	}
}

func TestEvaluateSizeBelowMinimum(t *testing.T) {
	rm := NewRiskManager(testLimits())
	acct := domain.AccountState{Equity: 10_000}

	_, err := rm.Evaluate(buySignal(0.004), 100, acct, Counters{}, "algoagent")
	if !errors.Is(err, ErrSizeBelowMinimum) {
		t.Errorf("err = %v, want ErrSizeBelowMinimum", err)
	}
}

func TestEvaluateZeroEquityRejected(t *testing.T) {
	rm := NewRiskManager(testLimits())

	// With no usable equity the risk budget is zero: the signal must be
	// rejected, never approved at its requested size. This is the state
	// after a failed first account fetch.
	_, err := rm.Evaluate(buySignal(500), 100, domain.AccountState{}, Counters{}, "algoagent")
	if !errors.Is(err, ErrSizeBelowMinimum) {
		t.Errorf("err = %v, want ErrSizeBelowMinimum on zero equity", err)
	}

	_, err = rm.Evaluate(buySignal(500), 100, domain.AccountState{Equity: -50}, Counters{}, "algoagent")
	if !errors.Is(err, ErrSizeBelowMinimum) {
		t.Errorf("err = %v, want ErrSizeBelowMinimum on negative equity", err)
	}
}

func TestEvaluateZeroRefPriceRejected(t *testing.T) {
	rm := NewRiskManager(testLimits())
	acct := domain.AccountState{Equity: 10_000}

	_, err := rm.Evaluate(buySignal(10), 0, acct, Counters{}, "algoagent")
	if !errors.Is(err, ErrSizeBelowMinimum) {
		t.Errorf("err = %v, want ErrSizeBelowMinimum on zero reference price", err)
	}
}

func TestFloorToStep(t *testing.T) {
	cases := []struct {
		size, step, want float64
	}{
		{0.3, 0.1, 0.3},     // exact multiple survives float noise
		{0.29, 0.1, 0.2},    // rounds down, never up
		{50, 0.01, 50},      // whole number unchanged
		{1.239, 0.01, 1.23}, // truncates the extra fraction
		{5, 0, 5},           // zero step disables flooring
	}
	for _, c := range cases {
		if got := floorToStep(c.size, c.step); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("floorToStep(%v, %v) = %v, want %v", c.size, c.step, got, c.want)
		}
	}
}
