package domain

import (
	"testing"
	"time"
)

func TestOrderStatusTerminal(t *testing.T) {
	cases := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusFilled, true},
		{OrderStatusPartial, true},
		{OrderStatusAccepted, true},
		{OrderStatusRejected, true},
		{OrderStatusUnreachable, false},
	}
	for _, c := range cases {
		if got := c.status.Terminal(); got != c.want {
			t.Errorf("Terminal(%q) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestEnumValues(t *testing.T) {
	if SideBuy != "buy" || SideSell != "sell" {
		t.Error("Side constants have unexpected values")
	}
	if ActionEntry != "entry" || ActionExit != "exit" {
		t.Error("Action constants have unexpected values")
	}
	if OrderKindMarket != "market" || OrderKindLimit != "limit" || OrderKindStop != "stop" {
		t.Error("OrderKind constants have unexpected values")
	}
	if OrderStatusUnreachable != "broker-unreachable" {
		t.Errorf("OrderStatusUnreachable = %q, want %q", OrderStatusUnreachable, "broker-unreachable")
	}
}

func TestZeroValues(t *testing.T) {
	// Zero-value structs must be usable as "empty" sentinels.
	bar := Bar{}
	if bar.Symbol != "" || !bar.Timestamp.IsZero() {
		t.Error("zero-value Bar is not empty")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 || bar.Volume != 0 {
		t.Error("expected zero OHLCV for zero-value Bar")
	}

	pos := Position{}
	if pos.Qty != 0 || pos.AvgEntryPrice != 0 {
		t.Error("zero-value Position is not empty")
	}

	res := OrderResult{}
	if res.Status != "" || res.Attempt != 0 {
		t.Error("zero-value OrderResult is not empty")
	}
}

func TestSignalConstruction(t *testing.T) {
	now := time.Now()
	sig := Signal{
		ID:         "sig-1",
		StrategyID: "sma-cross",
		Symbol:     "AAPL",
		Side:       SideBuy,
		Action:     ActionEntry,
		Kind:       OrderKindMarket,
		Qty:        10,
		CreatedAt:  now,
	}
	if sig.Symbol != "AAPL" || sig.Side != SideBuy {
		t.Errorf("unexpected signal: %+v", sig)
	}
	if sig.Price != 0 {
		t.Error("market signal should have no price")
	}
}
