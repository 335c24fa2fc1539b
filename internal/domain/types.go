// Package domain defines the core value types shared across the execution
// engine: bars, signals, orders, positions, account state, and audit events.
package domain

import "time"

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// Side is the direction of a signal or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Action distinguishes opening a position from closing one.
type Action string

const (
	ActionEntry Action = "entry"
	ActionExit  Action = "exit"
)

// OrderKind is the broker order type.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
	OrderKindStop   OrderKind = "stop"
)

// OrderStatus is the outcome of a single submission attempt.
type OrderStatus string

const (
	OrderStatusAccepted    OrderStatus = "accepted"
	OrderStatusFilled      OrderStatus = "filled"
	OrderStatusPartial     OrderStatus = "partially-filled"
	OrderStatusRejected    OrderStatus = "rejected"
	OrderStatusUnreachable OrderStatus = "broker-unreachable"
)

// Terminal reports whether the status ends the submission state machine for
// an attempt. Unreachable is not terminal — it is subject to retry.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusPartial, OrderStatusAccepted, OrderStatusRejected:
		return true
	}
	return false
}

// Severity classifies audit events for operators.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Category groups audit events by pipeline stage.
type Category string

const (
	CategorySignal         Category = "signal"
	CategoryOrder          Category = "order"
	CategoryReconciliation Category = "reconciliation"
	CategorySystem         Category = "system"
)

// Well-known audit event types.
const (
	EventOrphanedPositionClosed = "OrphanedPositionClosed"
	EventPositionDriftCorrected = "PositionDriftCorrected"
	EventKillSwitchActivated    = "KillSwitchActivated"
	EventDailySummary           = "DailySummary"
	EventRiskRejected           = "RiskRejected"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV bar for one symbol and interval. Bars are immutable
// once produced. Indicators carries optional precomputed indicator values
// keyed by name.
type Bar struct {
	Symbol     string             `json:"symbol"`
	Timestamp  time.Time          `json:"timestamp"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     int64              `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// ---------------------------------------------------------------------------
// Signals and orders
// ---------------------------------------------------------------------------

// Signal is a strategy-produced intent to enter or exit a position. The
// requested Qty is strategy-relative and not yet risk-sized. A Signal is
// never mutated after creation; a rejected or superseded signal is simply
// not acted on.
type Signal struct {
	ID         string    `json:"id"` // strategy-local correlation id
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Action     Action    `json:"action"`
	Kind       OrderKind `json:"kind"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price,omitempty"` // limit/stop price; 0 for market
	CreatedAt  time.Time `json:"created_at"`
}

// OrderRequest is a risk-approved, sized instruction to be sent to the
// broker. Exactly one OrderRequest is created per approved Signal; the
// CorrelationID doubles as the idempotency key reused across retries.
type OrderRequest struct {
	CorrelationID string    `json:"correlation_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Action        Action    `json:"action"`
	Kind          OrderKind `json:"kind"`
	Qty           float64   `json:"qty"`
	Price         float64   `json:"price,omitempty"`
	Tag           string    `json:"tag"` // identifies this engine instance
	CreatedAt     time.Time `json:"created_at"`
}

// OrderResult is the outcome of one submission attempt. Multiple results may
// exist for a single OrderRequest (one per retry); the request's final state
// is the last terminal result.
type OrderResult struct {
	CorrelationID string      `json:"correlation_id"`
	Symbol        string      `json:"symbol"`
	Status        OrderStatus `json:"status"`
	BrokerOrderID string      `json:"broker_order_id,omitempty"`
	FilledQty     float64     `json:"filled_qty"`
	FilledPrice   float64     `json:"filled_price"`
	Code          int         `json:"code"`
	Message       string      `json:"message,omitempty"`
	Attempt       int         `json:"attempt"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Positions and account
// ---------------------------------------------------------------------------

// Position is one entry in the engine's local ledger. The local ledger is
// advisory: the broker's reported positions are authoritative, and
// reconciliation overwrites local state on conflict. Qty is the net size —
// positive long, negative short.
type Position struct {
	Symbol        string    `json:"symbol"`
	Qty           float64   `json:"qty"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	OpenedAt      time.Time `json:"opened_at"`
	Tag           string    `json:"tag"`
}

// AccountState is a read-only snapshot of the brokerage account, refreshed
// once per cycle.
type AccountState struct {
	Balance          float64   `json:"balance"`
	Equity           float64   `json:"equity"`
	MarginFree       float64   `json:"margin_free"`
	DailyTrades      int       `json:"daily_trades"`
	DailyRealizedPnL float64   `json:"daily_realized_pnl"`
	AsOf             time.Time `json:"as_of"`
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// AuditEvent is a write-once operational record. Payload carries free-form
// key/value context (e.g. before/after sizes for a drift correction).
type AuditEvent struct {
	ID        string            `json:"id"`
	Severity  Severity          `json:"severity"`
	Category  Category          `json:"category"`
	Type      string            `json:"type"`
	Symbol    string            `json:"symbol,omitempty"`
	Message   string            `json:"message"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
