package fsops

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors on a registry of its own, so
// several engines can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Operations  *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Retries     *prometheus.CounterVec
	WatchEvents prometheus.Counter
	JobsActive  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsengine_operations_total",
				Help: "Total number of filesystem operations",
			},
			[]string{"op", "result"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fsengine_operation_duration_seconds",
				Help:    "Filesystem operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsengine_retries_total",
				Help: "Total number of retried I/O attempts",
			},
			[]string{"op"},
		),
		WatchEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fsengine_watch_events_total",
				Help: "Total number of directory change events",
			},
		),
		JobsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fsengine_jobs_active",
				Help: "Number of offloaded operations currently running",
			},
		),
	}
}

// Observe records one finished operation.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
