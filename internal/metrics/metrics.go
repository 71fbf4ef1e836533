// Package metrics exposes poll cycle instrumentation as Prometheus metrics.
//
// Collectors live on a private registry so several watchers (and tests) can
// coexist in one process. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statuswatch"

// Cycle results recorded on the cycles_total counter.
const (
	ResultOK            = "ok"
	ResultPersistFailed = "persist_failed"
	ResultAbandoned     = "abandoned"
)

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	sources         prometheus.Gauge
	fetchFailures   *prometheus.CounterVec
	changes         prometheus.Counter
	persistFailures prometheus.Counter
	lastCycle       prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a poll cycle from reload to commit",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}),
		sources: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sources",
			Help:      "Sources polled in the most recent cycle",
		}),
		fetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Per-source poll failures by kind",
		}, []string{"kind"}),
		changes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Incident changes emitted",
		}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed state commits",
		}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the most recent cycle finished",
		}),
	}
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(result string, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.lastCycle.Set(float64(finished.Unix()))
}

// SetSources records how many sources the current cycle polls.
func (m *Metrics) SetSources(n int) {
	if m == nil {
		return
	}
	m.sources.Set(float64(n))
}

// FetchFailure counts one failed source.
func (m *Metrics) FetchFailure(kind string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(kind).Inc()
}

// Changes counts emitted changes.
func (m *Metrics) Changes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.changes.Add(float64(n))
}

// PersistFailure counts a failed commit.
func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
