// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the portal.
type Metrics struct {
	registry *prometheus.Registry

	// Upload metrics
	UploadsTotal  *prometheus.CounterVec
	UploadBytes   prometheus.Histogram
	DatasetsAlive prometheus.Gauge

	// Pivot metrics
	PivotRunsTotal *prometheus.CounterVec
	PivotDuration  prometheus.Histogram
	PivotRowsIn    prometheus.Histogram

	// Export metrics
	ExportsTotal *prometheus.CounterVec

	// Dashboard metrics
	DashboardQueriesTotal *prometheus.CounterVec
	DriveRefreshesTotal   *prometheus.CounterVec
	DashboardDatasets     prometheus.Gauge

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cpor_portal"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of workbook uploads by kind and outcome",
		}, []string{"kind", "status"}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "payload_bytes",
			Help:      "Uploaded workbook size in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		DatasetsAlive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "datasets",
			Help:      "Number of pivot datasets currently stored",
		}),

		PivotRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pivot",
			Name:      "runs_total",
			Help:      "Total number of pivot computations by outcome",
		}, []string{"status"}),
		PivotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pivot",
			Name:      "duration_seconds",
			Help:      "Pivot computation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		PivotRowsIn: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pivot",
			Name:      "source_rows",
			Help:      "Source row count per pivot computation",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		}),

		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "requests_total",
			Help:      "Total number of exports by format and outcome",
		}, []string{"format", "status"}),

		DashboardQueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "queries_total",
			Help:      "Total number of dashboard queries by outcome",
		}, []string{"status"}),
		DriveRefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "drive_refreshes_total",
			Help:      "Total number of remote workbook refreshes by outcome",
		}, []string{"status"}),
		DashboardDatasets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "datasets",
			Help:      "Number of contracts datasets currently stored",
		}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds by route and code",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// Handler returns the /metrics endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome labels shared by the counters.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// outcome maps an error to a counter label.
func outcome(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// RecordUpload records one workbook upload.
func (m *Metrics) RecordUpload(kind string, bytes int, err error) {
	m.UploadsTotal.WithLabelValues(kind, outcome(err)).Inc()
	if err == nil {
		m.UploadBytes.Observe(float64(bytes))
	}
}

// RecordPivot records one pivot computation.
func (m *Metrics) RecordPivot(sourceRows int, seconds float64, err error) {
	m.PivotRunsTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.PivotDuration.Observe(seconds)
		m.PivotRowsIn.Observe(float64(sourceRows))
	}
}

// RecordExport records one export request.
func (m *Metrics) RecordExport(format string, err error) {
	m.ExportsTotal.WithLabelValues(format, outcome(err)).Inc()
}

// RecordDashboardQuery records one dashboard view computation.
func (m *Metrics) RecordDashboardQuery(err error) {
	m.DashboardQueriesTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordDriveRefresh records one remote workbook refresh.
func (m *Metrics) RecordDriveRefresh(err error) {
	m.DriveRefreshesTotal.WithLabelValues(outcome(err)).Inc()
}
