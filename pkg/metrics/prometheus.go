package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	registry  *prometheus.Registry
	processed *prometheus.CounterVec
	admitted  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	encodings *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// New creates a recorder on its own registry. Extra collectors (for example
// the Kafka client metrics) are registered alongside.
func New(extra ...prometheus.Collector) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(extra...)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		processed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpeer_companies_processed_total",
				Help: "Companies run through the valuation pipeline",
			},
			[]string{"exchange"},
		),
		admitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpeer_companies_admitted_total",
				Help: "Companies admitted into a bucket population",
			},
			[]string{"exchange"},
		),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpeer_companies_rejected_total",
				Help: "Companies rejected by the admission policy",
			},
			[]string{"reason"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpeer_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		encodings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpeer_encodings_total",
				Help: "Encoded ratio values by direction",
			},
			[]string{"direction"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finpeer_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordProcessed(exchange string) {
	r.processed.WithLabelValues(exchange).Inc()
}

func (r *Recorder) RecordAdmitted(exchange string) {
	r.admitted.WithLabelValues(exchange).Inc()
}

func (r *Recorder) RecordRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordEncoding(direction string) {
	r.encodings.WithLabelValues(direction).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
