package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netatmo_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Cycle metrics.
	Cycles        *prometheus.CounterVec // labels: outcome={success,token_error,cancelled}
	CycleDuration prometheus.Histogram
	Windows       *prometheus.CounterVec // labels: outcome={success,error}

	// Device metrics.
	DevicesProcessed      *prometheus.CounterVec // labels: path={create,merge}
	DeviceErrors          prometheus.Counter
	SensorsUpdated        *prometheus.CounterVec // labels: type
	ObservationsPublished prometheus.Counter

	// Netatmo API metrics.
	NetatmoRequests        *prometheus.CounterVec   // labels: endpoint={token,publicdata}, outcome={success,error}
	NetatmoRequestDuration *prometheus.HistogramVec // labels: endpoint
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.Cycles,
		m.CycleDuration,
		m.Windows,
		m.DevicesProcessed,
		m.DeviceErrors,
		m.SensorsUpdated,
		m.ObservationsPublished,
		m.NetatmoRequests,
		m.NetatmoRequestDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the ingest scheduler is active, 0 when shut down.",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Ingest cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete ingest cycle over all windows.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 240, 300},
		}),
		Windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Public data windows fetched, by outcome.",
		}, []string{"outcome"}),
		DevicesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devices_processed_total",
			Help:      "Devices persisted, by whether they were created or merged.",
		}, []string{"path"}),
		DeviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_errors_total",
			Help:      "Devices skipped because of a processing failure.",
		}),
		SensorsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensors_updated_total",
			Help:      "Sensors whose value was adopted from the payload, by sensor type.",
		}, []string{"type"}),
		ObservationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_published_total",
			Help:      "Observations written to Kafka.",
		}),
		NetatmoRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "netatmo_requests_total",
			Help:      "Netatmo API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		NetatmoRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "netatmo_request_duration_seconds",
			Help:      "Netatmo API request duration in seconds, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
	}
}
