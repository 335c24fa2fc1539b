package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/metrics"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/util"
)

// Executor drives an approved OrderRequest to a terminal outcome: bounded
// retries with exponential backoff on transient failures, immediate stop on
// business rejections. Every attempt is appended to the audit store before
// the executor acts on it, so a crash mid-cycle never loses the evidence of
// what was attempted.
type Executor struct {
	gw    broker.Gateway
	store audit.Store
	log   *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	dryRun      bool
}

// NewExecutor creates an Executor. In dry-run mode the final broker call is
// replaced by a locally simulated fill at the reference price; everything
// else, including auditing, runs unchanged.
func NewExecutor(gw broker.Gateway, store audit.Store, log *slog.Logger, maxAttempts int, baseDelay, maxDelay time.Duration, dryRun bool) *Executor {
	return &Executor{
		gw:          gw,
		store:       store,
		log:         log,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		dryRun:      dryRun,
	}
}

// Submit sends the request and returns the final OrderResult. refPrice is
// the latest close, used only for dry-run fills. The returned error is an
// audit-store failure, never a broker outcome; broker rejections and
// unreachability are statuses on the result.
//
// Retries reuse the request's CorrelationID so a gateway with duplicate
// detection never opens two positions for one logical signal.
func (e *Executor) Submit(ctx context.Context, req domain.OrderRequest, refPrice float64) (domain.OrderResult, error) {
	var res domain.OrderResult

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if e.dryRun {
			res = e.simulateFill(req, refPrice, attempt)
		} else {
			res = e.gw.SubmitOrder(ctx, req)
		}
		res.Attempt = attempt

		// Write-before-act: the audit record must exist before the result
		// becomes actionable state.
		if err := e.store.AppendOrderResult(ctx, res); err != nil {
			return res, fmt.Errorf("recording order result for %s: %w", req.CorrelationID, err)
		}

		if !e.retryable(res) {
			metrics.OrdersTotal.WithLabelValues(req.Symbol, string(res.Status)).Inc()
			e.log.Info("order terminal",
				"correlation_id", req.CorrelationID,
				"symbol", req.Symbol,
				"status", res.Status,
				"attempt", attempt)
			return res, nil
		}

		e.log.Warn("order attempt failed, will retry",
			"correlation_id", req.CorrelationID,
			"symbol", req.Symbol,
			"status", res.Status,
			"code", res.Code,
			"attempt", attempt,
			"max_attempts", e.maxAttempts)

		if attempt < e.maxAttempts {
			metrics.RetriesTotal.WithLabelValues(req.Symbol).Inc()
			if err := util.SleepCtx(ctx, util.BackoffDelay(e.baseDelay, attempt-1, e.maxDelay)); err != nil {
				// Shutdown during backoff: the last attempt is already
				// recorded, stop here.
				metrics.OrdersTotal.WithLabelValues(req.Symbol, string(res.Status)).Inc()
				return res, nil
			}
		}
	}

	metrics.OrdersTotal.WithLabelValues(req.Symbol, string(res.Status)).Inc()
	e.log.Error("order retries exhausted",
		"correlation_id", req.CorrelationID,
		"symbol", req.Symbol,
		"status", res.Status,
		"attempts", e.maxAttempts)
	return res, nil
}

// retryable reports whether a result should be retried: the broker was
// unreachable, or it returned a transient code (timeout, requote, rate
// limit). Terminal rejections are never retried.
func (e *Executor) retryable(res domain.OrderResult) bool {
	if res.Status == domain.OrderStatusUnreachable {
		return true
	}
	return res.Status == domain.OrderStatusRejected && broker.TransientCode(res.Code)
}

// simulateFill produces the dry-run stand-in for a broker submission: a
// full fill at the reference price.
func (e *Executor) simulateFill(req domain.OrderRequest, refPrice float64, attempt int) domain.OrderResult {
	price := refPrice
	if req.Kind != domain.OrderKindMarket && req.Price > 0 {
		price = req.Price
	}
	return domain.OrderResult{
		CorrelationID: req.CorrelationID,
		Symbol:        req.Symbol,
		Status:        domain.OrderStatusFilled,
		BrokerOrderID: "dry-run-" + req.CorrelationID,
		FilledQty:     req.Qty,
		FilledPrice:   price,
		Code:          broker.CodeOK,
		Message:       "dry-run simulated fill",
		Attempt:       attempt,
		Timestamp:     time.Now(),
	}
}
