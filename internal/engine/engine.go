// Package engine contains the execution core: the interval-driven control
// loop, risk sizing, order submission with retries, the local position
// ledger, and reconciliation against the broker's authoritative state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/audit"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/config"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/domain"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/killswitch"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/metrics"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/strategy"
	"github.com/Chiqo-ke/AlgoAgent-sub008/internal/util"
)

// State is the engine's run-level lifecycle state.
type State string

const (
	StateStarting          State = "starting"
	StateConnecting        State = "connecting"
	StateRunning           State = "running"
	StateKillSwitchTripped State = "kill-switch-tripped"
	StateFatalError        State = "fatal-error"
	StateShuttingDown      State = "shutting-down"
	StateStopped           State = "stopped"
)

// Engine orchestrates the per-cycle pipeline: fetch bars, run the strategy,
// size signals through the risk manager, submit orders, audit everything,
// and reconcile positions. Symbols are processed concurrently within a
// cycle; each symbol's pipeline is strictly sequential.
type Engine struct {
	cfg     *config.Config
	gw      broker.Gateway
	strat   strategy.Strategy
	store   audit.Store
	archive *audit.BarArchive // nil disables bar archiving
	kill    killswitch.Monitor
	log     *slog.Logger

	risk       *RiskManager
	executor   *Executor
	ledger     *Ledger
	reconciler *Reconciler
	paper      *paperBook // non-nil only in dry-run

	// The strategy carries per-symbol state; OnBar must never run
	// concurrently even when symbols are processed in parallel.
	stratMu sync.Mutex

	mu          sync.RWMutex
	state       State
	account     domain.AccountState
	counters    Counters
	dayStart    time.Time
	killTripped bool
}

// New wires an Engine from its collaborators. archive may be nil.
func New(cfg *config.Config, gw broker.Gateway, strat strategy.Strategy, store audit.Store, archive *audit.BarArchive, kill killswitch.Monitor, log *slog.Logger) *Engine {
	ledger := NewLedger()

	// In dry-run nothing reaches the broker, so reconciliation converges on
	// the book of simulated fills instead of the broker's position set.
	var src PositionSource = gw
	var paper *paperBook
	if cfg.Trading.DryRun {
		paper = newPaperBook()
		src = paper
	}

	return &Engine{
		cfg:     cfg,
		gw:      gw,
		strat:   strat,
		store:   store,
		archive: archive,
		kill:    kill,
		log:     log,

		risk: NewRiskManager(cfg.Risk),
		executor: NewExecutor(gw, store, log,
			cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay(), cfg.Retry.MaxDelay(),
			cfg.Trading.DryRun),
		ledger:     ledger,
		reconciler: NewReconciler(src, ledger, store, log, cfg.Retry),
		paper:      paper,

		state: StateStarting,
	}
}

// Run executes the engine until the context is cancelled, the kill switch
// trips, or a fatal error occurs. The returned error is non-nil only for
// fatal conditions; kill-switch and shutdown are clean exits.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateStarting)
	if err := e.strat.Init(ctx); err != nil {
		e.fail(ctx, fmt.Sprintf("strategy init failed: %v", err))
		return fmt.Errorf("initializing strategy %s: %w", e.strat.Name(), err)
	}

	e.setState(StateConnecting)
	var session *broker.SessionInfo
	err := util.Retry(ctx, e.cfg.Retry.MaxAttempts, e.cfg.Retry.BaseDelay(), e.cfg.Retry.MaxDelay(), func() error {
		s, cerr := e.gw.Connect(ctx)
		if cerr != nil {
			e.log.Warn("broker connect attempt failed", "error", cerr)
			return cerr
		}
		session = s
		return nil
	})
	if err != nil {
		e.fail(ctx, fmt.Sprintf("broker connect failed: %v", err))
		return err
	}
	defer e.gw.Disconnect()
	e.log.Info("broker session established",
		"broker", session.Broker,
		"account", session.AccountID,
		"dry_run", e.cfg.Trading.DryRun)

	e.setState(StateRunning)
	interval := e.cfg.Trading.Interval()

	for ctx.Err() == nil {
		start := time.Now()

		if e.checkKillSwitch(ctx) {
			e.setState(StateKillSwitchTripped)
			break
		}

		e.rolloverDay(ctx, start)
		e.refreshAccount(ctx)
		e.runCycle(ctx, start)

		if err := e.reconciler.Reconcile(ctx); err != nil {
			e.log.Warn("reconciliation skipped", "error", err)
		}
		metrics.CyclesTotal.Inc()

		if e.checkKillSwitch(ctx) {
			e.setState(StateKillSwitchTripped)
			break
		}

		// Sleep out the remainder of the interval; cancellable so shutdown
		// and the kill switch never wait on a blocking sleep.
		if err := util.SleepCtx(ctx, interval-time.Since(start)); err != nil {
			break
		}
	}

	e.setState(StateShuttingDown)
	e.log.Info("engine shutting down")
	e.setState(StateStopped)
	return nil
}

// runCycle processes every configured symbol concurrently. One symbol's
// failure is logged and must not abort the others.
func (e *Engine) runCycle(ctx context.Context, now time.Time) {
	var wg sync.WaitGroup
	for _, sym := range e.cfg.Trading.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("symbol pipeline panicked", "symbol", sym, "panic", r)
					ev := audit.NewEvent(domain.SeverityError, domain.CategorySystem,
						"PipelinePanic", sym, fmt.Sprintf("panic: %v", r), nil)
					if err := e.store.AppendEvent(ctx, ev); err != nil {
						e.log.Error("recording panic event", "symbol", sym, "error", err)
					}
				}
			}()
			if err := e.processSymbol(ctx, sym, now); err != nil {
				e.log.Error("symbol cycle failed", "symbol", sym, "error", err)
			}
		}(sym)
	}
	wg.Wait()
}

// processSymbol runs one symbol's pipeline: bars, strategy, risk, submit.
func (e *Engine) processSymbol(ctx context.Context, sym string, now time.Time) error {
	bars, err := e.fetchBars(ctx, sym)
	if err != nil {
		return fmt.Errorf("fetching bars for %s: %w", sym, err)
	}
	if len(bars) == 0 {
		return nil
	}
	if e.archive != nil {
		if err := e.archive.WriteBars(bars); err != nil {
			e.log.Warn("bar archive write failed", "symbol", sym, "error", err)
		}
	}
	latest := bars[len(bars)-1]

	signals, err := e.callStrategy(ctx, now, map[string]domain.Bar{sym: latest})
	if err != nil {
		return fmt.Errorf("strategy %s on %s: %w", e.strat.Name(), sym, err)
	}

	for _, sig := range signals {
		metrics.SignalsTotal.WithLabelValues(sym, string(sig.Side)).Inc()
		if err := e.store.AppendSignal(ctx, sig); err != nil {
			return fmt.Errorf("recording signal %s: %w", sig.ID, err)
		}

		// Re-check the switch before every submission, not only at cycle
		// boundaries.
		if e.checkKillSwitch(ctx) {
			e.log.Warn("kill switch tripped, signal not submitted",
				"symbol", sym, "signal", sig.ID)
			continue
		}

		acct, counters := e.riskInputs()
		req, rerr := e.risk.Evaluate(sig, latest.Close, acct, counters, e.cfg.Trading.Tag)
		if rerr != nil {
			metrics.RiskRejectionsTotal.WithLabelValues(sym, riskReason(rerr)).Inc()
			e.log.Info("signal rejected by risk manager",
				"symbol", sym, "signal", sig.ID, "reason", rerr)
			ev := audit.NewEvent(domain.SeverityInfo, domain.CategorySignal,
				domain.EventRiskRejected, sym, rerr.Error(),
				map[string]string{"signal_id": sig.ID})
			if err := e.store.AppendEvent(ctx, ev); err != nil {
				return fmt.Errorf("recording risk rejection for %s: %w", sig.ID, err)
			}
			continue
		}

		res, err := e.executor.Submit(ctx, req, latest.Close)
		if err != nil {
			return err
		}
		if res.Status == domain.OrderStatusFilled || res.Status == domain.OrderStatusPartial {
			realized := e.ledger.ApplyFill(res, req.Side, req.Tag)
			if e.paper != nil {
				e.paper.record(res, req.Side, req.Tag)
			}
			e.recordTrade(realized)
		}
	}
	return nil
}

// fetchBars pulls the symbol's recent bars, retrying transient data failures
// per the retry policy before giving up on the symbol for this cycle.
func (e *Engine) fetchBars(ctx context.Context, sym string) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, e.cfg.Retry.MaxAttempts, e.cfg.Retry.BaseDelay(), e.cfg.Retry.MaxDelay(), func() error {
		var ferr error
		bars, ferr = e.gw.FetchBars(ctx, sym, e.cfg.Trading.Timeframe, e.cfg.Trading.BarCount)
		return ferr
	})
	return bars, err
}

// callStrategy serializes OnBar across the per-symbol goroutines. The defer
// releases the lock even if the strategy panics.
func (e *Engine) callStrategy(ctx context.Context, now time.Time, bars map[string]domain.Bar) ([]domain.Signal, error) {
	e.stratMu.Lock()
	defer e.stratMu.Unlock()
	return e.strat.OnBar(ctx, now, bars)
}

// ---------------------------------------------------------------------------
// Kill switch and daily counters
// ---------------------------------------------------------------------------

// checkKillSwitch polls the monitor. The activation event is recorded once
// per run; subsequent checks only keep the gauge current.
func (e *Engine) checkKillSwitch(ctx context.Context) bool {
	if !e.kill.Tripped() {
		metrics.KillSwitchActive.Set(0)
		return false
	}
	metrics.KillSwitchActive.Set(1)

	e.mu.Lock()
	first := !e.killTripped
	e.killTripped = true
	e.mu.Unlock()

	if first {
		e.log.Warn("kill switch activated, halting new submissions")
		ev := audit.NewEvent(domain.SeverityWarning, domain.CategorySystem,
			domain.EventKillSwitchActivated, "", "kill switch tripped", nil)
		if err := e.store.AppendEvent(ctx, ev); err != nil {
			e.log.Error("recording kill switch event", "error", err)
		}
	}
	return true
}

// rolloverDay resets the daily counters when the UTC trading day changes
// and records a summary of the day that ended.
func (e *Engine) rolloverDay(ctx context.Context, now time.Time) {
	e.mu.Lock()
	if e.dayStart.IsZero() {
		e.dayStart = now
		e.mu.Unlock()
		return
	}
	if util.SameTradingDay(now, e.dayStart) {
		e.mu.Unlock()
		return
	}
	ended := util.TradingDay(e.dayStart)
	summary := e.counters
	e.dayStart = now
	e.counters = Counters{}
	e.mu.Unlock()

	e.log.Info("trading day rolled over", "ended", ended,
		"trades", summary.Trades, "realized_pnl", summary.RealizedPnL)
	ev := audit.NewEvent(domain.SeverityInfo, domain.CategorySystem,
		domain.EventDailySummary, "",
		fmt.Sprintf("day %s: %d trades, realized pnl %.2f", ended, summary.Trades, summary.RealizedPnL),
		map[string]string{
			"day":          ended,
			"trades":       strconv.Itoa(summary.Trades),
			"realized_pnl": strconv.FormatFloat(summary.RealizedPnL, 'f', -1, 64),
		})
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		e.log.Error("recording daily summary", "error", err)
	}
}

// refreshAccount pulls a fresh account snapshot. On failure the previous
// snapshot stays in effect and the cycle continues.
func (e *Engine) refreshAccount(ctx context.Context) {
	acct, err := e.gw.AccountState(ctx)
	if err != nil {
		e.log.Warn("account refresh failed, using last snapshot", "error", err)
		return
	}

	e.mu.Lock()
	e.account = *acct
	e.mu.Unlock()
	metrics.AccountEquity.Set(acct.Equity)
}

func (e *Engine) riskInputs() (domain.AccountState, Counters) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.account, e.counters
}

func (e *Engine) recordTrade(realized float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters.Trades++
	e.counters.RealizedPnL += realized
}

// ---------------------------------------------------------------------------
// Lifecycle and monitoring snapshots
// ---------------------------------------------------------------------------

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.log.Info("engine state", "state", s)
}

// fail records a fatal condition and walks the state machine to Stopped.
func (e *Engine) fail(ctx context.Context, msg string) {
	e.setState(StateFatalError)
	ev := audit.NewEvent(domain.SeverityError, domain.CategorySystem,
		"FatalError", "", msg, nil)
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		e.log.Error("recording fatal error", "error", err)
	}
	e.setState(StateShuttingDown)
	e.setState(StateStopped)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Account returns the last account snapshot.
func (e *Engine) Account() domain.AccountState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.account
}

// Positions returns the ledger's open positions.
func (e *Engine) Positions() []domain.Position {
	return e.ledger.Snapshot()
}

// DailyCounters returns today's trade count and realized P&L.
func (e *Engine) DailyCounters() Counters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.counters
}

func riskReason(err error) string {
	switch err {
	case ErrDailyLossLimit:
		return "daily-loss-limit"
	case ErrDailyTradeLimit:
		return "daily-trade-limit"
	case ErrSizeBelowMinimum:
		return "size-below-minimum"
	}
	return "other"
}
