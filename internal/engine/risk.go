package engine

import (
	"errors"
	"math"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/config"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
)

// Rejection reasons returned by the risk manager. These are expected
// outcomes, logged at info level, never treated as failures.
var (
	ErrDailyLossLimit   = errors.New("daily loss limit exceeded")
	ErrDailyTradeLimit  = errors.New("daily trade limit exceeded")
	ErrSizeBelowMinimum = errors.New("computed size below minimum")
)

// Counters are the engine's running totals for the current trading day,
// reset at the UTC day rollover.
type Counters struct {
	Trades      int
	RealizedPnL float64 // negative when the day is at a loss
}

// RiskManager sizes approved signals and rejects those that violate the
// configured limits. Evaluate performs no I/O and holds no state, so the
// same inputs always produce the same decision.
type RiskManager struct {
	limits config.Risk
}

// NewRiskManager creates a RiskManager with the given limits.
func NewRiskManager(limits config.Risk) *RiskManager {
	return &RiskManager{limits: limits}
}

// Evaluate turns a signal into a sized OrderRequest or a rejection.
// refPrice is the latest close for the symbol, used to translate the
// risk budget (risk pct of equity over the assumed stop distance) into
// units. An oversized request is down-sized, not rejected.
func (rm *RiskManager) Evaluate(sig domain.Signal, refPrice float64, acct domain.AccountState, counters Counters, tag string) (domain.OrderRequest, error) {
	if acct.Equity > 0 && -counters.RealizedPnL >= rm.limits.MaxDailyLossPct*acct.Equity {
		return domain.OrderRequest{}, ErrDailyLossLimit
	}
	if counters.Trades >= rm.limits.MaxDailyTrades {
		return domain.OrderRequest{}, ErrDailyTradeLimit
	}

	size := sig.Qty
	if riskCap, ok := rm.riskCap(refPrice, acct.Equity); ok && riskCap < size {
		size = riskCap
	}
	if rm.limits.MaxPositionSize > 0 && size > rm.limits.MaxPositionSize {
		size = rm.limits.MaxPositionSize
	}
	size = floorToStep(size, rm.limits.LotStep)
	if size <= 0 {
		return domain.OrderRequest{}, ErrSizeBelowMinimum
	}

	return domain.OrderRequest{
		CorrelationID: sig.ID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Action:        sig.Action,
		Kind:          sig.Kind,
		Qty:           size,
		Price:         sig.Price,
		Tag:           tag,
		CreatedAt:     sig.CreatedAt,
	}, nil
}

// riskCap returns the maximum size whose worst-case loss, at the assumed
// stop distance, stays within the per-trade risk budget. The cap is
// undefined only when budget sizing is disabled by configuration; with no
// usable equity or reference price the budget is zero and nothing may be
// risked, so the cap is zero rather than skipped.
func (rm *RiskManager) riskCap(refPrice, equity float64) (float64, bool) {
	if rm.limits.StopDistancePct <= 0 || rm.limits.DefaultRiskPct <= 0 {
		return 0, false
	}
	if refPrice <= 0 || equity <= 0 {
		return 0, true
	}
	perUnitLoss := rm.limits.StopDistancePct * refPrice
	return rm.limits.DefaultRiskPct * equity / perUnitLoss, true
}

// floorToStep rounds size down to a multiple of step. The epsilon keeps
// float noise (e.g. 0.30000000000000004) from dropping a whole step.
func floorToStep(size, step float64) float64 {
	if step <= 0 {
		return size
	}
	return math.Floor(size/step+1e-9) * step
}
