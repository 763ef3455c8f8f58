package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for served api calls and crash reports.
type Metrics struct {
	registry     *prometheus.Registry
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	reports      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microservice_api_calls_total",
			Help: "Number of served api calls by endpoint and status code.",
		}, []string{"endpoint", "status"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "microservice_api_call_duration_seconds",
			Help:    "Duration of served api calls by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microservice_error_reports_total",
			Help: "Number of error reports sent, by severity.",
		}, []string{"severity"}),
	}

	m.registry.MustRegister(
		m.calls,
		m.callDuration,
		m.reports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveCall(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.callDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) ObserveReport(fatal bool) {
	if m == nil {
		return
	}
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	m.reports.WithLabelValues(severity).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
