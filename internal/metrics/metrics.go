// Package metrics exposes Prometheus counters and gauges for the trading
// engine. Counters are package-level so any package can record without
// threading a registry through constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "engine_cycles_total", Help: "Completed engine cycles"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by strategies"},
		[]string{"symbol", "side"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Order submission outcomes by final status"},
		[]string{"symbol", "status"},
	)
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_retries_total", Help: "Order submission retry attempts"},
		[]string{"symbol"},
	)
	RiskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_rejections_total", Help: "Signals rejected by the risk manager"},
		[]string{"symbol", "reason"},
	)
	DriftCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "drift_corrections_total", Help: "Position drift corrections applied during reconciliation"},
		[]string{"symbol"},
	)
	KillSwitchActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "kill_switch_active", Help: "1 while the kill switch is tripped"},
	)
	AccountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "account_equity", Help: "Last observed account equity"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		SignalsTotal,
		OrdersTotal,
		RetriesTotal,
		RiskRejectionsTotal,
		DriftCorrectionsTotal,
		KillSwitchActive,
		AccountEquity,
	)
}
