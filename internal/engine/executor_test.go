package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// memStore is an in-memory audit.Store for tests.
type memStore struct {
	mu      sync.Mutex
	signals []domain.Signal
	results []domain.OrderResult
	events  []domain.AuditEvent
}

var _ audit.Store = (*memStore)(nil)

func (m *memStore) AppendSignal(_ context.Context, sig domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

func (m *memStore) AppendOrderResult(_ context.Context, res domain.OrderResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, ev domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) RecentEvents(_ context.Context, category domain.Category, limit int) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if category == "" || m.events[i].Category == category {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *memStore) RecentOrderResults(_ context.Context, symbol string, limit int) ([]domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderResult
	for i := len(m.results) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol == "" || m.results[i].Symbol == symbol {
			out = append(out, m.results[i])
		}
	}
	return out, nil
}

func (m *memStore) RecentSignals(_ context.Context, symbol string, limit int) ([]domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Signal
	for i := len(m.signals) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol == "" || m.signals[i].Symbol == symbol {
			out = append(out, m.signals[i])
		}
	}
	return out, nil
}

func (m *memStore) resultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func (m *memStore) eventsOfType(eventType string) []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range m.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

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

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

func TestExecutorRetriesExhaustOnUnreachable(t *testing.T) {
	ctx := context.Background()
	gw := broker.NewSimulatorGateway(10_000)
	gw.Connect(ctx)
	gw.SetPrice("AAPL", 100)
	gw.FailSubmissions(3)
	store := &memStore{}

	exec := NewExecutor(gw, store, testLogger(), 3, time.Millisecond, 10*time.Millisecond, false)
	res, err := exec.Submit(ctx, marketReq("ord-1", "AAPL", domain.SideBuy, 10), 100)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Exactly one result per attempt, final status unreachable.
	if store.resultCount() != 3 {
		t.Errorf("got %d logged results, want 3", store.resultCount())
	}
	if res.Status != domain.OrderStatusUnreachable {
		t.Errorf("final status = %s, want broker-unreachable", res.Status)
	}
	if res.Attempt != 3 {
		t.Errorf("final attempt = %d, want 3", res.Attempt)
	}

	// No partial position may exist after a fully failed submission.
	positions, _ := gw.FetchPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("got %d broker positions, want 0", len(positions))
	}
}

func TestExecutorTerminalRejectionNotRetried(t *testing.T) {
	ctx := context.Background()
	gw := broker.NewSimulatorGateway(10_000)
	gw.Connect(ctx)
	gw.SetPrice("AAPL", 100)
	gw.RejectNext(broker.CodeInsufficientMargin, "insufficient margin")
	store := &memStore{}

	exec := NewExecutor(gw, store, testLogger(), 3, time.Millisecond, 10*time.Millisecond, false)
	res, err := exec.Submit(ctx, marketReq("ord-1", "AAPL", domain.SideBuy, 10), 100)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if store.resultCount() != 1 {
		t.Errorf("got %d results, want 1 (no retry on terminal rejection)", store.resultCount())
	}
	if res.Status != domain.OrderStatusRejected || res.Code != broker.CodeInsufficientMargin {
		t.Errorf("result = %s/%d, want rejected/%d", res.Status, res.Code, broker.CodeInsufficientMargin)
	}
}

func TestExecutorRecoversAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	gw := broker.NewSimulatorGateway(10_000)
	gw.Connect(ctx)
	gw.SetPrice("AAPL", 100)
	gw.FailSubmissions(1)
	store := &memStore{}

	exec := NewExecutor(gw, store, testLogger(), 3, time.Millisecond, 10*time.Millisecond, false)
	res, err := exec.Submit(ctx, marketReq("ord-1", "AAPL", domain.SideBuy, 10), 100)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.Status != domain.OrderStatusFilled {
		t.Fatalf("final status = %s, want filled", res.Status)
	}
	if res.Attempt != 2 {
		t.Errorf("filled on attempt %d, want 2", res.Attempt)
	}
	if store.resultCount() != 2 {
		t.Errorf("got %d results, want 2", store.resultCount())
	}

	// One logical signal, one broker position.
	positions, _ := gw.FetchPositions(ctx)
	if len(positions) != 1 || positions[0].Qty != 10 {
		t.Errorf("positions = %+v, want one of qty 10", positions)
	}
}

func TestExecutorDryRunSkipsBroker(t *testing.T) {
	ctx := context.Background()
	gw := broker.NewSimulatorGateway(10_000)
	gw.Connect(ctx)
	gw.SetPrice("AAPL", 100)
	store := &memStore{}

	exec := NewExecutor(gw, store, testLogger(), 3, time.Millisecond, 10*time.Millisecond, true)
	res, err := exec.Submit(ctx, marketReq("ord-1", "AAPL", domain.SideBuy, 10), 123.45)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.Status != domain.OrderStatusFilled || res.FilledPrice != 123.45 {
		t.Errorf("result = %s @ %v, want simulated fill at 123.45", res.Status, res.FilledPrice)
	}
	if !strings.HasPrefix(res.BrokerOrderID, "dry-run-") {
		t.Errorf("BrokerOrderID = %q, want dry-run marker", res.BrokerOrderID)
	}
	if store.resultCount() != 1 {
		t.Errorf("got %d results, want 1", store.resultCount())
	}

	// The broker was never touched.
	positions, _ := gw.FetchPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("dry-run created %d broker positions, want 0", len(positions))
	}
}

func TestExecutorStopsOnCancelledBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := broker.NewSimulatorGateway(10_000)
	gw.Connect(ctx)
	gw.SetPrice("AAPL", 100)
	gw.FailSubmissions(10)
	store := &memStore{}

	exec := NewExecutor(gw, store, testLogger(), 5, time.Hour, time.Hour, false)
	done := make(chan domain.OrderResult, 1)
	go func() {
		res, _ := exec.Submit(ctx, marketReq("ord-1", "AAPL", domain.SideBuy, 10), 100)
		done <- res
	}()

	// Let the first attempt land, then cancel during backoff.
	for store.resultCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case res := <-done:
		if res.Status != domain.OrderStatusUnreachable {
			t.Errorf("status = %s, want broker-unreachable", res.Status)
		}
		if store.resultCount() != 1 {
			t.Errorf("got %d results, want 1 (attempt recorded before shutdown)", store.resultCount())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Submit did not return after cancellation")
	}
}
