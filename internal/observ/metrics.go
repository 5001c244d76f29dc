package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hitherto_cycles_total",
		Help: "Pipeline cycles completed, by outcome.",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hitherto_cycle_duration_seconds",
		Help:    "Wall time of a full pipeline cycle.",
		Buckets: prometheus.DefBuckets,
	})

	ModuleExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hitherto_module_executions_total",
		Help: "Analyzer module executions, by module and result.",
	}, []string{"module", "result"})

	ModuleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hitherto_module_duration_seconds",
		Help:    "Per-module execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"module"})

	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hitherto_signals_emitted_total",
		Help: "Signals emitted onto the bus, by message type.",
	}, []string{"type"})

	RegimeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hitherto_regime_transitions_total",
		Help: "Committed regime transitions, by new label.",
	}, []string{"regime"})

	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hitherto_risk_verdicts_total",
		Help: "Risk verdicts issued, by verdict.",
	}, []string{"verdict"})

	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hitherto_kill_switch_active",
		Help: "1 while the risk kill switch is engaged.",
	})

	CircuitBreakerActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hitherto_circuit_breaker_active",
		Help: "1 while the execution circuit breaker is engaged.",
	})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hitherto_orders_total",
		Help: "Orders produced by the execution engine, by final status.",
	}, []string{"status"})

	StoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hitherto_store_failures_total",
		Help: "Persistence writes that failed and were rolled back.",
	})
)
