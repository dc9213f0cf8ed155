// Package metrics exposes Prometheus collectors for the dashboard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workhard"

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	blockHeight  prometheus.Gauge
	tickErrors   prometheus.Counter
	fetches      *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	commands     *prometheus.CounterVec
	mounts       prometheus.Gauge
}

// New registers the dashboard collectors plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Latest block observed by the tick source.",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Block polls that failed.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_fetches_total",
			Help:      "Projection fetches by projection name and result.",
		}, []string{"projection", "result"}),
		fetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "projection_fetch_seconds",
			Help:      "Latency of projection fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"projection"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Transaction commands by action and outcome.",
		}, []string{"action", "outcome"}),
		mounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mounted_scopes",
			Help:      "Projection scopes currently mounted.",
		}),
	}
	m.registry.MustRegister(
		m.blockHeight, m.tickErrors, m.fetches, m.fetchSeconds, m.commands, m.mounts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry is the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) BlockHeight(h uint64) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(h))
}

func (m *Metrics) TickFailed() {
	if m == nil {
		return
	}
	m.tickErrors.Inc()
}

// Fetched records one projection fetch.
func (m *Metrics) Fetched(projection string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(projection, result).Inc()
	m.fetchSeconds.WithLabelValues(projection).Observe(took.Seconds())
}

// Command records the outcome of a transaction command.
func (m *Metrics) Command(action, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Mounted(n int) {
	if m == nil {
		return
	}
	m.mounts.Set(float64(n))
}
