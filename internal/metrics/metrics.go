// Package metrics exposes the engine's health through a Prometheus
// registry: cumulative counters for runs and classifications, gauge
// snapshots refreshed from storage after each maintenance run, and latency
// histograms. Scraped via Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quietfold/retain/internal/lifecycle"
	"github.com/quietfold/retain/internal/store"
)

type Metrics struct {
	reg *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	itemsProcessed  prometheus.Counter
	itemsFailed     prometheus.Counter
	reactivations   *prometheus.CounterVec
	classifications *prometheus.CounterVec

	runDuration      prometheus.Histogram
	classifyDuration *prometheus.HistogramVec

	itemsByState  *prometheus.GaugeVec
	avgDecay      prometheus.Gauge
	avgImportance prometheus.Gauge
	avgStability  prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retain_maintenance_runs_total",
			Help: "Maintenance runs by terminal status.",
		}, []string{"status"}),
		itemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retain_items_processed_total",
			Help: "Items successfully re-scored across all runs.",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retain_items_failed_total",
			Help: "Per-item failures across all runs.",
		}),
		reactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retain_reactivations_total",
			Help: "Items revived to active by an access event, by origin state.",
		}, []string{"from"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retain_classifications_total",
			Help: "Classification attempts by model and outcome.",
		}, []string{"model", "outcome"}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "retain_maintenance_run_seconds",
			Help:    "Wall-clock duration of maintenance runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		classifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retain_classification_seconds",
			Help:    "Latency of classification oracle calls.",
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"model"}),

		itemsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "retain_items",
			Help: "Item counts by lifecycle state and category.",
		}, []string{"state", "category"}),
		avgDecay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "retain_avg_decay_score",
			Help: "Mean decay score over non-purged items.",
		}),
		avgImportance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "retain_avg_importance",
			Help: "Mean importance over non-purged items.",
		}),
		avgStability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "retain_avg_stability",
			Help: "Mean stability over non-purged items.",
		}),
	}

	m.reg.MustRegister(
		m.runsTotal, m.itemsProcessed, m.itemsFailed, m.reactivations, m.classifications,
		m.runDuration, m.classifyDuration,
		m.itemsByState, m.avgDecay, m.avgImportance, m.avgStability,
	)
	return m
}

// Handler returns the scrape endpoint for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveRun records one finished maintenance run.
func (m *Metrics) ObserveRun(status string, processed, failed int, seconds float64) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.itemsProcessed.Add(float64(processed))
	m.itemsFailed.Add(float64(failed))
	m.runDuration.Observe(seconds)
}

// ObserveReactivation records one reactivation by origin state.
func (m *Metrics) ObserveReactivation(origin lifecycle.ReactivationOrigin) {
	switch origin {
	case lifecycle.FromDormant:
		m.reactivations.WithLabelValues("dormant").Inc()
	case lifecycle.FromArchived:
		m.reactivations.WithLabelValues("archived").Inc()
	}
}

// ObserveClassification implements classify.Recorder.
func (m *Metrics) ObserveClassification(model, outcome string, seconds float64) {
	m.classifications.WithLabelValues(model, outcome).Inc()
	m.classifyDuration.WithLabelValues(model).Observe(seconds)
}

// Refresh replaces the gauge snapshot with aggregates freshly computed from
// storage. Stale state/category series are dropped, not left to drift.
func (m *Metrics) Refresh(snap *store.Snapshot) {
	m.itemsByState.Reset()
	for _, sc := range snap.StateCounts {
		m.itemsByState.WithLabelValues(sc.State, sc.Category).Set(float64(sc.Count))
	}
	m.avgDecay.Set(snap.AvgDecay)
	m.avgImportance.Set(snap.AvgImportance)
	m.avgStability.Set(snap.AvgStability)
}
