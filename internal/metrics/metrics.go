// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_jobs_processed_total",
		Help: "Jobs processed by the worker pool, by kind and outcome.",
	}, []string{"kind", "outcome"})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamvault_jobs_in_flight",
		Help: "Jobs currently being processed.",
	})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamvault_job_duration_seconds",
		Help:    "Wall-clock duration of sync jobs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"kind"})

	RecordsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_records_reconciled_total",
		Help: "Catalog records reconciled, by content kind and result.",
	}, []string{"kind", "result"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamvault_fetch_errors_total",
		Help: "Upstream catalog fetch failures by action.",
	}, []string{"action"})
)

// ObserveStats feeds per-kind reconcile counters after a sync run.
func ObserveStats(kind string, created, updated, unchanged, invalid int) {
	RecordsReconciled.WithLabelValues(kind, "created").Add(float64(created))
	RecordsReconciled.WithLabelValues(kind, "updated").Add(float64(updated))
	RecordsReconciled.WithLabelValues(kind, "unchanged").Add(float64(unchanged))
	RecordsReconciled.WithLabelValues(kind, "invalid").Add(float64(invalid))
}
