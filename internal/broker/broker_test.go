package broker

import (
	"context"
	"testing"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

func marketReq(id, symbol string, side domain.Side, qty float64) domain.OrderRequest {
	return domain.OrderRequest{
		CorrelationID: id,
		Symbol:        symbol,
		Side:          side,
		Action:        domain.ActionEntry,
		Kind:          domain.OrderKindMarket,
		Qty:           qty,
		Tag:           "test",
		CreatedAt:     time.Now(),
	}
}

func TestSimulatorFill(t *testing.T) {
	ctx := context.Background()
	g := NewSimulatorGateway(10000)
	if _, err := g.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	g.SetPrice("AAPL", 100)

	res := g.SubmitOrder(ctx, marketReq("c-1", "AAPL", domain.SideBuy, 5))
	if res.Status != domain.OrderStatusFilled {
		t.Fatalf("Status = %q, want filled (%s)", res.Status, res.Message)
	}
	if res.FilledQty != 5 || res.FilledPrice != 100 {
		t.Errorf("fill = %v @ %v, want 5 @ 100", res.FilledQty, res.FilledPrice)
	}

	positions, err := g.FetchPositions(ctx)
	if err != nil {
		t.Fatalf("FetchPositions: %v", err)
	}
	if len(positions) != 1 || positions[0].Qty != 5 {
		t.Errorf("positions = %+v, want one AAPL position of 5", positions)
	}

	acct, err := g.AccountState(ctx)
	if err != nil {
		t.Fatalf("AccountState: %v", err)
	}
	if acct.Balance != 10000-500 {
		t.Errorf("Balance = %v, want 9500", acct.Balance)
	}
	if acct.Equity != 10000 {
		t.Errorf("Equity = %v, want 10000 (cash + marked position)", acct.Equity)
	}
}

func TestSimulatorIdempotency(t *testing.T) {
	// Resubmitting the same correlation id must not create a second fill.
	ctx := context.Background()
	g := NewSimulatorGateway(10000)
	g.Connect(ctx)
	g.SetPrice("AAPL", 100)

	first := g.SubmitOrder(ctx, marketReq("dup-1", "AAPL", domain.SideBuy, 5))
	second := g.SubmitOrder(ctx, marketReq("dup-1", "AAPL", domain.SideBuy, 5))

	if first.BrokerOrderID != second.BrokerOrderID {
		t.Errorf("duplicate submission created a new order: %q vs %q",
			first.BrokerOrderID, second.BrokerOrderID)
	}

	positions, _ := g.FetchPositions(ctx)
	if len(positions) != 1 || positions[0].Qty != 5 {
		t.Errorf("positions = %+v, want a single position of 5", positions)
	}
}

func TestSimulatorFaultScript(t *testing.T) {
	ctx := context.Background()
	g := NewSimulatorGateway(10000)
	g.Connect(ctx)
	g.SetPrice("AAPL", 100)

	g.FailSubmissions(2)

	r1 := g.SubmitOrder(ctx, marketReq("f-1", "AAPL", domain.SideBuy, 1))
	r2 := g.SubmitOrder(ctx, marketReq("f-1", "AAPL", domain.SideBuy, 1))
	if r1.Status != domain.OrderStatusUnreachable || r2.Status != domain.OrderStatusUnreachable {
		t.Fatalf("scripted failures not honoured: %q, %q", r1.Status, r2.Status)
	}

	r3 := g.SubmitOrder(ctx, marketReq("f-1", "AAPL", domain.SideBuy, 1))
	if r3.Status != domain.OrderStatusFilled {
		t.Fatalf("third attempt should fill, got %q", r3.Status)
	}

	g.RejectNext(CodeInsufficientMargin, "insufficient margin")
	r4 := g.SubmitOrder(ctx, marketReq("f-2", "AAPL", domain.SideBuy, 1))
	if r4.Status != domain.OrderStatusRejected || r4.Code != CodeInsufficientMargin {
		t.Errorf("rejection script not honoured: %+v", r4)
	}
}

func TestSimulatorSellClosesPosition(t *testing.T) {
	ctx := context.Background()
	g := NewSimulatorGateway(10000)
	g.Connect(ctx)
	g.SetPrice("AAPL", 100)

	g.SubmitOrder(ctx, marketReq("s-1", "AAPL", domain.SideBuy, 5))
	g.SubmitOrder(ctx, marketReq("s-2", "AAPL", domain.SideSell, 5))

	positions, _ := g.FetchPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("positions = %+v, want none after flat", positions)
	}
}

func TestSimulatorDisconnected(t *testing.T) {
	ctx := context.Background()
	g := NewSimulatorGateway(10000)
	// No Connect: data methods must surface ErrUnavailable.
	if _, err := g.FetchPositions(ctx); err == nil {
		t.Error("FetchPositions should fail before Connect")
	}
	if _, err := g.AccountState(ctx); err == nil {
		t.Error("AccountState should fail before Connect")
	}
}

func TestTransientCode(t *testing.T) {
	transient := []int{CodeTimeout, CodeRequote, CodeRateLimited, CodeUnavailable}
	for _, c := range transient {
		if !TransientCode(c) {
			t.Errorf("TransientCode(%d) = false, want true", c)
		}
	}
	terminal := []int{CodeOK, CodeInvalid, CodeInsufficientMargin, CodeInvalidStops, CodeMarketClosed}
	for _, c := range terminal {
		if TransientCode(c) {
			t.Errorf("TransientCode(%d) = true, want false", c)
		}
	}
}

func TestParseTimeframe(t *testing.T) {
	for _, tf := range []string{"1Min", "5Min", "15Min", "30Min", "1Hour", "1Day"} {
		if _, err := parseTimeframe(tf); err != nil {
			t.Errorf("parseTimeframe(%q) returned error: %v", tf, err)
		}
	}
	if _, err := parseTimeframe("2Weeks"); err == nil {
		t.Error("parseTimeframe should reject unsupported timeframes")
	}
}

func TestAlpacaGatewayName(t *testing.T) {
	g := NewAlpacaGateway("key", "secret", "https://paper-api.alpaca.markets", "", 10*time.Second, 200)
	if got := g.Name(); got != "alpaca" {
		t.Errorf("Name() = %q, want alpaca", got)
	}
}
