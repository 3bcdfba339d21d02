package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duel_arena"

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

type Metrics struct {
	DuelsCreated        *prometheus.CounterVec
	DuelsEnded          *prometheus.CounterVec
	RoundsResolved      prometheus.Counter
	SettlementDeferred  prometheus.Counter
	LedgerInconsistency prometheus.Counter
	LockConflicts       prometheus.Counter
	TimersPending       prometheus.Gauge
	TimersFired         *prometheus.CounterVec
	LiveConnections     prometheus.Gauge
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// Get lazily registers the collectors on first use.
func Get() *Metrics {
	metricsOnce.Do(func() {
		factory := promauto.With(Registry)
		Registry.MustRegister(collectors.NewGoCollector())
		metrics = &Metrics{
			DuelsCreated: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duels_created_total",
				Help:      "Challenges created, by duel kind",
			}, []string{"kind"}),
			DuelsEnded: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duels_ended_total",
				Help:      "Duels that reached a terminal status, by status",
			}, []string{"status"}),
			RoundsResolved: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_resolved_total",
				Help:      "Rounds resolved across all duels",
			}),
			SettlementDeferred: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_deferred_total",
				Help:      "Settlements deferred because the ledger was unavailable",
			}),
			LedgerInconsistency: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_inconsistency_total",
				Help:      "Settlements whose transfer committed but whose record update failed",
			}),
			LockConflicts: factory.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_conflicts_total",
				Help:      "Lock acquisitions that exhausted their retries",
			}),
			TimersPending: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "timers_pending",
				Help:      "Scheduled deadlines that have not fired or been cancelled",
			}),
			TimersFired: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timers_fired_total",
				Help:      "Deadlines that fired, by tag",
			}, []string{"tag"}),
			LiveConnections: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_connections",
				Help:      "Open live session sockets",
			}),
		}
	})
	return metrics
}

func Handler() http.Handler {
	Get()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
