// Package metric defines the Prometheus collectors shared by the ingest and
// worker services.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the pipeline-level collectors.
type Metrics struct {
	NotificationsReceived *prometheus.CounterVec
	JobsResolved          *prometheus.CounterVec
	ForwardDeliveries     *prometheus.CounterVec
	IdleCycles            prometheus.Counter
	ProcessingDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry, pre-registered with
// the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		NotificationsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "notifications",
				Name:      "received_total",
				Help:      "Notifications accepted, by route and handling mode",
			},
			[]string{"route", "mode"},
		),
		JobsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "jobs",
				Name:      "resolved_total",
				Help:      "Queue jobs resolved, by outcome (done, retried, dead_letter)",
			},
			[]string{"outcome"},
		),
		ForwardDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "forward",
				Name:      "deliveries_total",
				Help:      "Downstream forward attempts, by result",
			},
			[]string{"result"},
		),
		IdleCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ingest",
				Subsystem: "worker",
				Name:      "idle_cycles_total",
				Help:      "Worker poll cycles that found nothing claimable",
			},
		),
		ProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ingest",
				Subsystem: "jobs",
				Name:      "processing_duration_seconds",
				Help:      "End-to-end job processing duration",
				Buckets:   prometheus.DefBuckets,
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.NotificationsReceived,
		m.JobsResolved,
		m.ForwardDeliveries,
		m.IdleCycles,
		m.ProcessingDuration,
	)
	return m
}

// ObserveForward counts one downstream delivery attempt.
func (m *Metrics) ObserveForward(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	m.ForwardDeliveries.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
