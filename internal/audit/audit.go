// Package audit provides append-only persistence for every signal, order
// attempt, and operational event the engine produces, with time-ordered
// retrieval per kind. Records are write-once: the store only ever inserts.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// Store is the append-only audit log consumed by the engine and served
// read-only by the monitor.
type Store interface {
	// AppendSignal records a strategy signal.
	AppendSignal(ctx context.Context, sig domain.Signal) error

	// AppendOrderResult records one submission attempt. The executor calls
	// this before acting on the result (write-before-act).
	AppendOrderResult(ctx context.Context, res domain.OrderResult) error

	// AppendEvent records an operational event.
	AppendEvent(ctx context.Context, ev domain.AuditEvent) error

	// RecentEvents returns the most recent events for a category, newest
	// first. An empty category matches all.
	RecentEvents(ctx context.Context, category domain.Category, limit int) ([]domain.AuditEvent, error)

	// RecentOrderResults returns the most recent order results, newest first.
	// An empty symbol matches all.
	RecentOrderResults(ctx context.Context, symbol string, limit int) ([]domain.OrderResult, error)

	// RecentSignals returns the most recent signals, newest first. An empty
	// symbol matches all.
	RecentSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error)
}

// NewEvent builds an AuditEvent with a fresh id and timestamp.
func NewEvent(severity domain.Severity, category domain.Category, eventType, symbol, message string, payload map[string]string) domain.AuditEvent {
	return domain.AuditEvent{
		ID:        uuid.NewString(),
		Severity:  severity,
		Category:  category,
		Type:      eventType,
		Symbol:    symbol,
		Message:   message,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
