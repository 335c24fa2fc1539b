package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// Compile-time interface check.
var _ Gateway = (*SimulatorGateway)(nil)

// SimulatorGateway implements the Gateway contract in memory for paper
// trading and tests. Market orders fill immediately at the last known price;
// limit and stop orders fill at their requested price. Fault injection hooks
// let tests script unreachable and rejected submissions.
type SimulatorGateway struct {
	mu        sync.Mutex
	connected bool

	bars      map[string][]domain.Bar
	lastPrice map[string]float64
	positions map[string]*domain.Position
	cash      float64

	// Duplicate detection: correlation id -> first result. A retried request
	// that already succeeded returns the original fill instead of filling
	// twice.
	submitted map[string]domain.OrderResult

	nextOrderID int

	// Fault script, consumed one submission at a time.
	unreachableLeft int
	rejectCode      int
	rejectMsg       string
}

// NewSimulatorGateway creates a simulator with the given starting cash.
func NewSimulatorGateway(cash float64) *SimulatorGateway {
	return &SimulatorGateway{
		bars:      make(map[string][]domain.Bar),
		lastPrice: make(map[string]float64),
		positions: make(map[string]*domain.Position),
		submitted: make(map[string]domain.OrderResult),
		cash:      cash,
	}
}

// Name returns "simulator".
func (g *SimulatorGateway) Name() string { return "simulator" }

// Connect marks the session as established.
func (g *SimulatorGateway) Connect(_ context.Context) (*SessionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return &SessionInfo{
		Broker:      "simulator",
		AccountID:   "sim-account",
		ConnectedAt: time.Now(),
	}, nil
}

// Disconnect marks the session as closed.
func (g *SimulatorGateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
}

// ---------------------------------------------------------------------------
// Test / paper-mode seeding
// ---------------------------------------------------------------------------

// SetBars replaces the bar history for a symbol. The last bar's close becomes
// the symbol's current price.
func (g *SimulatorGateway) SetBars(symbol string, bars []domain.Bar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bars[symbol] = bars
	if len(bars) > 0 {
		g.lastPrice[symbol] = bars[len(bars)-1].Close
	}
}

// SetPrice sets the current price for a symbol without bar history.
func (g *SimulatorGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastPrice[symbol] = price
}

// SetPosition seeds a broker-side position, e.g. to simulate manual
// intervention in the terminal for reconciliation tests.
func (g *SimulatorGateway) SetPosition(pos domain.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pos.Qty == 0 {
		delete(g.positions, pos.Symbol)
		return
	}
	p := pos
	g.positions[pos.Symbol] = &p
}

// FailSubmissions makes the next n submissions report broker-unreachable.
func (g *SimulatorGateway) FailSubmissions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unreachableLeft = n
}

// RejectNext makes the next submission a business rejection with the given
// return code.
func (g *SimulatorGateway) RejectNext(code int, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectCode = code
	g.rejectMsg = msg
}

// ---------------------------------------------------------------------------
// Gateway contract
// ---------------------------------------------------------------------------

// FetchBars returns up to count most recent bars for the symbol.
func (g *SimulatorGateway) FetchBars(_ context.Context, symbol, _ string, count int) ([]domain.Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, ErrUnavailable
	}
	bars := g.bars[symbol]
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// FetchPositions returns deep copies of all simulated positions.
func (g *SimulatorGateway) FetchPositions(_ context.Context) ([]domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, ErrUnavailable
	}
	positions := make([]domain.Position, 0, len(g.positions))
	for _, p := range g.positions {
		positions = append(positions, *p)
	}
	return positions, nil
}

// AccountState computes equity as cash plus the mark-to-market value of open
// positions at the last known prices.
func (g *SimulatorGateway) AccountState(_ context.Context) (*domain.AccountState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, ErrUnavailable
	}
	equity := g.cash
	for sym, p := range g.positions {
		equity += p.Qty * g.lastPrice[sym]
	}
	return &domain.AccountState{
		Balance:    g.cash,
		Equity:     equity,
		MarginFree: g.cash,
		AsOf:       time.Now(),
	}, nil
}

// SubmitOrder fills the request immediately unless a fault has been scripted.
// Submissions are serialized on the gateway mutex, matching the single
// in-flight-call constraint of a real terminal connection.
func (g *SimulatorGateway) SubmitOrder(_ context.Context, req domain.OrderRequest) domain.OrderResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	if g.unreachableLeft > 0 {
		g.unreachableLeft--
		return domain.OrderResult{
			CorrelationID: req.CorrelationID,
			Symbol:        req.Symbol,
			Status:        domain.OrderStatusUnreachable,
			Code:          CodeUnavailable,
			Message:       "simulated connection loss",
			Timestamp:     now,
		}
	}

	// Duplicate detection by correlation id.
	if prior, ok := g.submitted[req.CorrelationID]; ok {
		return prior
	}

	if req.Qty <= 0 {
		res := domain.OrderResult{
			CorrelationID: req.CorrelationID,
			Symbol:        req.Symbol,
			Status:        domain.OrderStatusRejected,
			Code:          CodeInvalid,
			Message:       "quantity must be positive",
			Timestamp:     now,
		}
		g.submitted[req.CorrelationID] = res
		return res
	}

	if g.rejectCode != 0 {
		code, msg := g.rejectCode, g.rejectMsg
		g.rejectCode, g.rejectMsg = 0, ""
		res := domain.OrderResult{
			CorrelationID: req.CorrelationID,
			Symbol:        req.Symbol,
			Status:        domain.OrderStatusRejected,
			Code:          code,
			Message:       msg,
			Timestamp:     now,
		}
		g.submitted[req.CorrelationID] = res
		return res
	}

	price := req.Price
	if req.Kind == domain.OrderKindMarket || price == 0 {
		price = g.lastPrice[req.Symbol]
	}
	if price == 0 {
		res := domain.OrderResult{
			CorrelationID: req.CorrelationID,
			Symbol:        req.Symbol,
			Status:        domain.OrderStatusRejected,
			Code:          CodeInvalid,
			Message:       fmt.Sprintf("no price known for %s", req.Symbol),
			Timestamp:     now,
		}
		g.submitted[req.CorrelationID] = res
		return res
	}

	g.nextOrderID++
	g.applyFill(req, price, now)

	res := domain.OrderResult{
		CorrelationID: req.CorrelationID,
		Symbol:        req.Symbol,
		Status:        domain.OrderStatusFilled,
		BrokerOrderID: fmt.Sprintf("sim-%d", g.nextOrderID),
		FilledQty:     req.Qty,
		FilledPrice:   price,
		Code:          CodeOK,
		Timestamp:     now,
	}
	g.submitted[req.CorrelationID] = res
	return res
}

// CancelOrder is a no-op for the simulator: orders fill immediately.
func (g *SimulatorGateway) CancelOrder(_ context.Context, _ string) error {
	return nil
}

// applyFill updates positions and cash for a filled order. Caller holds mu.
func (g *SimulatorGateway) applyFill(req domain.OrderRequest, price float64, now time.Time) {
	signed := req.Qty
	if req.Side == domain.SideSell {
		signed = -signed
	}

	pos, ok := g.positions[req.Symbol]
	if !ok {
		g.positions[req.Symbol] = &domain.Position{
			Symbol:        req.Symbol,
			Qty:           signed,
			AvgEntryPrice: price,
			OpenedAt:      now,
			Tag:           req.Tag,
		}
	} else {
		newQty := pos.Qty + signed
		if pos.Qty != 0 && (signed > 0) == (pos.Qty > 0) {
			// Adding to the position: volume-weighted average entry.
			pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Qty + price*signed) / newQty
		}
		pos.Qty = newQty
		if pos.Qty == 0 {
			delete(g.positions, req.Symbol)
		}
	}

	g.cash -= signed * price
	g.lastPrice[req.Symbol] = price
}
