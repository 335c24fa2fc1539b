// Package broker defines the Gateway interface wrapping a brokerage terminal
// and provides the live Alpaca implementation plus an in-memory simulator.
// All side effects against the broker are confined to this package; the rest
// of the engine is pure or locally stateful.
package broker

import (
	"context"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// SessionInfo describes an established broker session.
type SessionInfo struct {
	Broker      string
	AccountID   string
	ConnectedAt time.Time
}

// Gateway abstracts brokerage operations behind a uniform contract so the
// engine is broker-agnostic. Connection loss surfaces as ErrUnavailable from
// the data methods; business-level order rejection is NOT an error — it comes
// back as a normal OrderResult.
type Gateway interface {
	// Name returns the gateway identifier (e.g. "alpaca", "simulator").
	Name() string

	// Connect establishes a session. Failure is fatal for the run.
	Connect(ctx context.Context) (*SessionInfo, error)

	// Disconnect tears down the session. Safe to call more than once.
	Disconnect()

	// FetchBars returns up to count most recent bars for the symbol at the
	// given timeframe, oldest first.
	FetchBars(ctx context.Context, symbol, timeframe string, count int) ([]domain.Bar, error)

	// FetchPositions returns the broker's authoritative open positions.
	FetchPositions(ctx context.Context) ([]domain.Position, error)

	// AccountState returns a snapshot of the account's financial metrics.
	AccountState(ctx context.Context) (*domain.AccountState, error)

	// SubmitOrder sends one submission attempt. The result always describes
	// the outcome: rejections and unreachable brokers are statuses, never
	// panics or errors. Implementations must serialize submissions on the
	// shared connection and honour the request's CorrelationID for duplicate
	// detection.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) domain.OrderResult

	// CancelOrder requests cancellation of an open order by broker order id.
	CancelOrder(ctx context.Context, brokerOrderID string) error
}
