// Package metrics holds the Prometheus collectors for SolarWatch Core.
//
// All recording methods are safe on a nil *Metrics, so components accept
// an optional collector set without branching at every call site.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solarwatch"

// Metrics is the set of collectors registered on one registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	IngestTotal         *prometheus.CounterVec
	PartitionAppend     prometheus.Histogram
	WatchdogRuns        prometheus.Counter
	WatchdogEvaluated   prometheus.Gauge
	WatchdogOffline     prometheus.Gauge
	AlertsTotal         *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	MirrorWriteFailures prometheus.Counter
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		IngestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingest attempts by result (ok or rejection reason).",
		}, []string{"result"}),

		PartitionAppend: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "partition_append_seconds",
			Help:      "Time to lock, write and sync one time-series row.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),

		WatchdogRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_runs_total",
			Help:      "Completed watchdog evaluation passes.",
		}),

		WatchdogEvaluated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchdog_devices_evaluated",
			Help:      "Devices evaluated by the most recent watchdog pass.",
		}),

		WatchdogOffline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchdog_devices_offline",
			Help:      "Devices classified offline by the most recent watchdog pass.",
		}),

		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert dispatches by type and delivery outcome.",
		}, []string{"type", "ok"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		MirrorWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_write_failures_total",
			Help:      "Samples the InfluxDB mirror failed to write.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// IngestResult counts one ingest attempt.
func (m *Metrics) IngestResult(result string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(result).Inc()
}

// ObserveAppend records how long a partition append took.
func (m *Metrics) ObserveAppend(d time.Duration) {
	if m == nil {
		return
	}
	m.PartitionAppend.Observe(d.Seconds())
}

// WatchdogPass records the outcome of one watchdog run.
func (m *Metrics) WatchdogPass(evaluated, offline int) {
	if m == nil {
		return
	}
	m.WatchdogRuns.Inc()
	m.WatchdogEvaluated.Set(float64(evaluated))
	m.WatchdogOffline.Set(float64(offline))
}

// Alert counts one alert dispatch.
func (m *Metrics) Alert(kind string, ok bool) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(kind, strconv.FormatBool(ok)).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// MirrorFailure counts one failed mirror write.
func (m *Metrics) MirrorFailure() {
	if m == nil {
		return
	}
	m.MirrorWriteFailures.Inc()
}
