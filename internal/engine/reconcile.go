package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/config"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/metrics"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/util"
)

// PositionSource is the authoritative view of open positions the reconciler
// converges the ledger onto: the broker gateway in live mode, the paper book
// of simulated fills in dry-run mode.
type PositionSource interface {
	FetchPositions(ctx context.Context) ([]domain.Position, error)
}

var _ PositionSource = (broker.Gateway)(nil)

// Reconciler aligns the local ledger with the authoritative positions once
// per cycle. It only corrects the engine's belief about the world; it never
// issues orders.
type Reconciler struct {
	src    PositionSource
	ledger *Ledger
	store  audit.Store
	log    *slog.Logger
	retry  config.Retry
}

// NewReconciler creates a Reconciler over the given position source and
// ledger. Transient fetch failures are retried per the retry policy.
func NewReconciler(src PositionSource, ledger *Ledger, store audit.Store, log *slog.Logger, retry config.Retry) *Reconciler {
	return &Reconciler{src: src, ledger: ledger, store: store, log: log, retry: retry}
}

// Reconcile fetches the authoritative positions and resolves drift. After one
// pass the ledger exactly equals the reported set: missing or mismatched
// symbols are overwritten from the source, and local positions the source
// does not report are cleared. Every correction is audited with before and
// after sizes. A fetch that stays unavailable through the retry budget skips
// the pass and leaves the ledger untouched.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	var brokerPositions []domain.Position
	err := util.Retry(ctx, r.retry.MaxAttempts, r.retry.BaseDelay(), r.retry.MaxDelay(), func() error {
		var ferr error
		brokerPositions, ferr = r.src.FetchPositions(ctx)
		return ferr
	})
	if err != nil {
		return fmt.Errorf("fetching positions for reconciliation: %w", err)
	}

	reported := make(map[string]domain.Position, len(brokerPositions))
	for _, p := range brokerPositions {
		reported[p.Symbol] = p
	}

	// Broker has it: adopt on mismatch or when local never knew.
	for sym, bp := range reported {
		local, known := r.ledger.Get(sym)
		if known && math.Abs(local.Qty-bp.Qty) <= qtyEpsilon {
			continue
		}

		before := 0.0
		if known {
			before = local.Qty
		}
		r.ledger.Set(bp)
		metrics.DriftCorrectionsTotal.WithLabelValues(sym).Inc()
		r.log.Warn("position drift corrected",
			"symbol", sym, "before", before, "after", bp.Qty)

		ev := audit.NewEvent(domain.SeverityWarning, domain.CategoryReconciliation,
			domain.EventPositionDriftCorrected, sym,
			fmt.Sprintf("local position overwritten from broker: %v -> %v", before, bp.Qty),
			map[string]string{
				"before": formatQty(before),
				"after":  formatQty(bp.Qty),
			})
		if err := r.store.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("recording drift correction for %s: %w", sym, err)
		}
	}

	// Local has it, broker does not: the position was closed externally or
	// a fill was missed. Clear it.
	for _, sym := range r.ledger.Symbols() {
		if _, ok := reported[sym]; ok {
			continue
		}
		local, _ := r.ledger.Get(sym)
		r.ledger.Remove(sym)
		metrics.DriftCorrectionsTotal.WithLabelValues(sym).Inc()
		r.log.Warn("orphaned local position cleared",
			"symbol", sym, "qty", local.Qty)

		ev := audit.NewEvent(domain.SeverityWarning, domain.CategoryReconciliation,
			domain.EventOrphanedPositionClosed, sym,
			fmt.Sprintf("broker reports no position, local had %v", local.Qty),
			map[string]string{
				"before": formatQty(local.Qty),
				"after":  "0",
			})
		if err := r.store.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("recording orphan cleanup for %s: %w", sym, err)
		}
	}

	return nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
