// Package metrics declares the Prometheus instruments shared by the
// collector and the processors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Collector metrics
	snapshotsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slidetrack_snapshots_received_total",
			Help: "Total number of snapshots received by the collector",
		},
		[]string{"transport"},
	)

	snapshotsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slidetrack_snapshots_rejected_total",
			Help: "Total number of snapshots rejected by the collector",
		},
		[]string{"transport", "reason"},
	)

	produceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slidetrack_produce_duration_seconds",
			Help:    "Time spent producing a snapshot to Kafka",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"status"},
	)

	// Processor metrics
	snapshotsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slidetrack_snapshots_processed_total",
			Help: "Total number of snapshots consumed by a processor",
		},
		[]string{"processor"},
	)

	flushRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slidetrack_flush_rows_total",
			Help: "Total number of rows written to ClickHouse",
		},
		[]string{"table", "status"},
	)

	flushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slidetrack_flush_duration_seconds",
			Help:    "Time spent writing a batch to ClickHouse",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"table"},
	)

	insightsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slidetrack_insights_detected_total",
			Help: "Total number of insights detected",
		},
		[]string{"type"},
	)
)

func RecordReceived(transport string) {
	snapshotsReceived.WithLabelValues(transport).Inc()
}

// RecordRejected counts a rejected snapshot. reason is one of invalid,
// rate_limited or produce_failed.
func RecordRejected(transport, reason string) {
	snapshotsRejected.WithLabelValues(transport, reason).Inc()
}

func ObserveProduce(d time.Duration, err error) {
	produceDuration.WithLabelValues(status(err)).Observe(d.Seconds())
}

func RecordProcessed(processor string) {
	snapshotsProcessed.WithLabelValues(processor).Inc()
}

// RecordFlush records one batch write of rows into table
func RecordFlush(table string, rows int, d time.Duration, err error) {
	flushRows.WithLabelValues(table, status(err)).Add(float64(rows))
	flushDuration.WithLabelValues(table).Observe(d.Seconds())
}

func RecordInsight(insightType string) {
	insightsDetected.WithLabelValues(insightType).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
