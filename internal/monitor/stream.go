package monitor

import (
	"context"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// StreamMessage is the envelope broadcast to WebSocket clients.
type StreamMessage struct {
	Kind    string `json:"kind"` // "signal", "order_result", "event"
	Payload any    `json:"payload"`
}

// StreamingStore decorates an audit.Store, broadcasting every append to a
// Hub after the underlying store has durably recorded it. Reads pass
// through unchanged.
type StreamingStore struct {
	audit.Store
	hub *Hub
}

var _ audit.Store = (*StreamingStore)(nil)

// NewStreamingStore wraps store so appends are mirrored to hub.
func NewStreamingStore(store audit.Store, hub *Hub) *StreamingStore {
	return &StreamingStore{Store: store, hub: hub}
}

func (s *StreamingStore) AppendSignal(ctx context.Context, sig domain.Signal) error {
	if err := s.Store.AppendSignal(ctx, sig); err != nil {
		return err
	}
	s.hub.Broadcast(StreamMessage{Kind: "signal", Payload: sig})
	return nil
}

func (s *StreamingStore) AppendOrderResult(ctx context.Context, res domain.OrderResult) error {
	if err := s.Store.AppendOrderResult(ctx, res); err != nil {
		return err
	}
	s.hub.Broadcast(StreamMessage{Kind: "order_result", Payload: res})
	return nil
}

func (s *StreamingStore) AppendEvent(ctx context.Context, ev domain.AuditEvent) error {
	if err := s.Store.AppendEvent(ctx, ev); err != nil {
		return err
	}
	s.hub.Broadcast(StreamMessage{Kind: "event", Payload: ev})
	return nil
}
