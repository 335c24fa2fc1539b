package engine

import (
	"context"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// paperBook tracks the fills the executor simulates in dry-run mode so the
// reconciler has an authoritative position source without touching the
// broker. Without it every simulated position would look orphaned on the
// next reconciliation pass.
type paperBook struct {
	ledger *Ledger
}

var _ PositionSource = (*paperBook)(nil)

func newPaperBook() *paperBook {
	return &paperBook{ledger: NewLedger()}
}

// record applies a simulated fill to the book.
func (b *paperBook) record(res domain.OrderResult, side domain.Side, tag string) {
	b.ledger.ApplyFill(res, side, tag)
}

// FetchPositions returns the simulated open positions.
func (b *paperBook) FetchPositions(_ context.Context) ([]domain.Position, error) {
	return b.ledger.Snapshot(), nil
}
