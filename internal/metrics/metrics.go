package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine cycle and risk gate counters, exposed on /metrics.
var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_cycles_total",
		Help: "Completed engine cycles.",
	})
	CycleErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_cycle_errors_total",
		Help: "Engine cycles aborted by an error.",
	})
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_orders_placed_total",
		Help: "Orders sent to the venue by type.",
	}, []string{"type"})
	OrdersCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_orders_canceled_total",
		Help: "Orders canceled, orphan reconciliation included.",
	})
	GateDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_gate_denials_total",
		Help: "Risk gate denials by reason class.",
	}, []string{"reason"})
	TradesClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_trades_closed_total",
		Help: "Closed trades by reason.",
	}, []string{"reason"})

	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_equity",
		Help: "Current account equity in quote currency.",
	})
	Drawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_drawdown_ratio",
		Help: "Current drawdown from peak equity, 0..1.",
	})
	RiskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_risk_score",
		Help: "Risk score of the last evaluated cycle, 0..100.",
	})
	PositionSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_position_size",
		Help: "Open position size in base units, 0 when flat.",
	})
	TradingPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_trading_paused",
		Help: "1 while the drawdown breaker is paused.",
	})
)
