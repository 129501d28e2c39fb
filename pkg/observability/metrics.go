/*
Package observability instruments the dialog engine with Prometheus metrics.

Metrics attach through the engine's lifecycle hooks, so the core stays free of
any metrics dependency: build a Metrics value, pass its Hooks() to the
controller and expose promhttp wherever the application serves HTTP.
*/
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/parley/pkg/domain"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	turnsTotal    *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	turnResponses prometheus.Histogram
	nodeVisits    *prometheus.CounterVec
	shortCircuits prometheus.Counter
	activeTurns   prometheus.Gauge
}

// NewMetrics creates and registers the engine collectors. Pass
// prometheus.DefaultRegisterer for the usual global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "turns_total",
			Help:      "Completed turns, labelled by resolved intent.",
		}, []string{"intent"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parley",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one turn, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}),
		turnResponses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parley",
			Name:      "turn_responses",
			Help:      "Responses produced per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "node_visits_total",
			Help:      "Node activations, labelled by node and final status.",
		}, []string{"node", "status"}),
		shortCircuits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "short_circuits_total",
			Help:      "Turns aborted by the runaway-flow guard.",
		}),
		activeTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Name:      "active_turns",
			Help:      "Turns currently executing.",
		}),
	}
	reg.MustRegister(
		m.turnsTotal,
		m.turnDuration,
		m.turnResponses,
		m.nodeVisits,
		m.shortCircuits,
		m.activeTurns,
	)
	return m
}

// Hooks returns lifecycle hooks feeding these collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnStart: func(ctx context.Context, ev *domain.TurnEvent) {
			m.activeTurns.Inc()
		},
		OnTurnEnd: func(ctx context.Context, ev *domain.TurnEvent) {
			m.activeTurns.Dec()
			m.turnsTotal.WithLabelValues(intentLabel(ev.Intent)).Inc()
			m.turnDuration.Observe(ev.Duration.Seconds())
			m.turnResponses.Observe(float64(ev.Responses))
			if ev.ShortCircuited {
				m.shortCircuits.Inc()
			}
		},
		OnNodeLeave: func(ctx context.Context, ev *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(ev.Node, string(ev.Status)).Inc()
		},
	}
}

// intentLabel keeps the label space bounded when NLU produced nothing.
func intentLabel(intent string) string {
	if intent == "" {
		return "none"
	}
	return intent
}
