// internal/metrics/metrics.go

// Package metrics exposes spend and action counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goldencobra/internal/spending"
)

const namespace = "goldencobra"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	spends       prometheus.Counter
	amount       prometheus.Counter
	rankUps      *prometheus.CounterVec
	goalsCrossed prometheus.Counter
	actions      *prometheus.CounterVec
	actionErrors *prometheus.CounterVec
}

// New registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		spends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spends_total",
			Help:      "Number of applied spends.",
		}),
		amount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spent_stars_total",
			Help:      "Sum of applied spend amounts.",
		}),
		rankUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_ups_total",
			Help:      "Rank promotions by the rank reached.",
		}, []string{"rank"}),
		goalsCrossed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_crossed_total",
			Help:      "Community goals reported as crossed.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Inbound actions handled, by action name.",
		}, []string{"action"}),
		actionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_errors_total",
			Help:      "Inbound actions that ended in an error, by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.spends, m.amount, m.rankUps, m.goalsCrossed, m.actions, m.actionErrors,
	)
	return m
}

// ObserveSpend implements spending.Recorder.
func (m *Metrics) ObserveSpend(result *spending.SpendResult) {
	m.spends.Inc()
	amount, _ := result.Transaction.Amount.Float64()
	m.amount.Add(amount)
	if result.RankUp {
		m.rankUps.WithLabelValues(result.NewRank.Name).Inc()
	}
	m.goalsCrossed.Add(float64(len(result.CrossedGoals)))
}

// ObserveAction counts one inbound action.
func (m *Metrics) ObserveAction(action string) {
	m.actions.WithLabelValues(action).Inc()
}

// ObserveError counts a failed action by error kind.
func (m *Metrics) ObserveError(kind string) {
	m.actionErrors.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
