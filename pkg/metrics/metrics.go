// Package metrics exposes the daemon's Prometheus instrumentation: a
// private Registry of counters, histograms, and gauges covering
// inference calls, feedback outcomes, and search-node usage, served
// over HTTP via promhttp.HandlerFor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the daemon records.
type Registry struct {
	reg *prometheus.Registry

	InferenceCalls      *prometheus.CounterVec
	InferenceDuration   prometheus.Histogram
	SuggestionsEmitted  prometheus.Counter
	FeedbackApplied     *prometheus.CounterVec
	SearchNodesExplored prometheus.Histogram
	GreedyFallbacks     prometheus.Counter
	RulesActive         prometheus.Gauge
}

// New creates a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		InferenceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nudge",
			Name:      "inference_calls_total",
			Help:      "Total infer() calls, labeled by whether a validation error occurred.",
		}, []string{"outcome"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nudge",
			Name:      "inference_duration_seconds",
			Help:      "Wall-clock duration of infer() calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		SuggestionsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nudge",
			Name:      "suggestions_emitted_total",
			Help:      "Total candidates surfaced across all infer() calls.",
		}),
		FeedbackApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nudge",
			Name:      "feedback_applied_total",
			Help:      "Total apply_feedback calls, labeled by outcome.",
		}, []string{"outcome"}),
		SearchNodesExplored: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nudge",
			Name:      "schedule_search_nodes_explored",
			Help:      "Nodes explored per A* schedule-optimizer search.",
			Buckets:   []float64{1, 10, 100, 1000, 5000, 10000},
		}),
		GreedyFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nudge",
			Name:      "schedule_greedy_fallbacks_total",
			Help:      "Total times the schedule optimizer exhausted its node budget and fell back to greedy.",
		}),
		RulesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nudge",
			Name:      "rules_active",
			Help:      "Current count of active rules in the catalog.",
		}),
	}

	reg.MustRegister(
		r.InferenceCalls, r.InferenceDuration, r.SuggestionsEmitted,
		r.FeedbackApplied, r.SearchNodesExplored, r.GreedyFallbacks, r.RulesActive,
	)
	return r
}

// Handler returns the HTTP handler serving this registry's metrics in
// the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
