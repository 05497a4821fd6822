package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sunset_stats"

// Metrics holds the Prometheus counters, histograms, and gauges for sunset runs.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec // labels: outcome={completed,aborted,empty}
	RunDuration prometheus.Histogram
	RunState    prometheus.Gauge // index into pipeline run states
	RunActive   prometheus.Gauge

	// Point and cell accounting.
	Points *prometheus.CounterVec // labels: status={succeeded,failed,dropped}
	Cells  *prometheus.CounterVec // labels: source={cache,fetched,failed}

	// Cache metrics.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss,error}

	// Fetcher metrics.
	FetchAttempts    *prometheus.CounterVec // labels: outcome={success,rejected,transient,permanent}
	FetchAPIDuration prometheus.Histogram
	FetchInFlight    prometheus.Gauge
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunState,
		m.RunActive,
		m.Points,
		m.Cells,
		m.CacheLookups,
		m.FetchAttempts,
		m.FetchAPIDuration,
		m.FetchInFlight,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		RunState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_state",
			Help:      "Current run state (0=initialized .. 5=completed, 6=failed).",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_active",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		Points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_total",
			Help:      "Points by processing status.",
		}, []string{"status"}),
		Cells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_total",
			Help:      "Grid cells by result source.",
		}, []string{"source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Sunset lookup attempts by outcome.",
		}, []string{"outcome"}),
		FetchAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_api_duration_seconds",
			Help:      "Sunset API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FetchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_in_flight",
			Help:      "Sunset lookups currently in flight.",
		}),
	}
}
