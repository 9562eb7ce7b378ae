package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "buoy_telemetry"

// Metrics holds the Prometheus collectors for ingestion, storage and messaging.
type Metrics struct {
	MessagesIngested *prometheus.CounterVec // labels: kind={message,notification}, outcome={parsed,unparsed,stored}
	MalformedFields  *prometheus.CounterVec // labels: field={gps,ph,temperature,tds}
	AnomalyFlags     prometheus.Counter
	StorageErrors    prometheus.Counter
	IngestDuration   prometheus.Histogram
	EventsPublished  *prometheus.CounterVec   // labels: result={success,error}
	Deliveries       *prometheus.CounterVec   // labels: result={ack,nack,requeue}
	Reconciled       *prometheus.CounterVec   // labels: result={recovered,unparseable}
	HTTPRequests     *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration     *prometheus.HistogramVec // labels: method, route
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesIngested,
		m.MalformedFields,
		m.AnomalyFlags,
		m.StorageErrors,
		m.IngestDuration,
		m.EventsPublished,
		m.Deliveries,
		m.Reconciled,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Ingested messages by kind and parse outcome.",
		}, []string{"kind", "outcome"}),
		MalformedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_fields_total",
			Help:      "Sub-fields that degraded to null or NaN while parsing.",
		}, []string{"field"}),
		AnomalyFlags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomaly_flags_total",
			Help:      "Anomaly flags raised on accepted readings.",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Ingestion attempts that failed to persist.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time to validate, parse and persist one message.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Reading events published to the broker by result.",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_deliveries_total",
			Help:      "Queue deliveries handled by result.",
		}, []string{"result"}),
		Reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_raw_total",
			Help:      "Raw messages re-parsed by the reconciler by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}
