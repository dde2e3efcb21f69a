package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BarsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantsim_bars_processed_total",
		Help: "Total number of bars replayed by simulation runs",
	}, []string{"strategy"})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantsim_trades_executed_total",
		Help: "Total number of trades booked by the ledger",
	}, []string{"strategy", "side"})

	RiskRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantsim_risk_rejections_total",
		Help: "Total number of intents rejected by the risk gate",
	}, []string{"reason"})

	ExecutionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantsim_execution_events_total",
		Help: "Total number of partial fills and failed executions",
	}, []string{"kind"})

	RunTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantsim_run_terminations_total",
		Help: "Total number of finished simulation runs by termination reason",
	}, []string{"reason"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quantsim_run_duration_seconds",
		Help:    "Wall-clock duration of simulation runs",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"strategy"})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quantsim_active_runs",
		Help: "Number of simulation runs currently executing",
	})
)
