// Package metrics provides Prometheus metrics for the dipole trial engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every Prometheus metric the engine records.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	// Trial lifecycle
	trialsStarted  prometheus.Counter
	trialsResolved *prometheus.CounterVec
	trialDuration  prometheus.Histogram

	// Queue health
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueues prometheus.Counter
	queueRejects  *prometheus.CounterVec

	// Pool health
	workerActiveCount prometheus.Gauge

	// Aggregation
	finalizeDuration prometheus.Histogram
	runsCompleted    *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "dipole",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)

	m.trialsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "trials_started_total",
		Help:      "Trials dispatched to a worker.",
	})
	m.trialsResolved = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "trials_resolved_total",
		Help:      "Trials resolved, by final status.",
	}, []string{"status"})
	m.trialDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "trial_duration_seconds",
		Help:      "Wall-clock duration of a single trial.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})
	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "queue_size",
		Help:      "Jobs currently queued.",
	})
	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "queue_capacity",
		Help:      "Configured queue backlog bound.",
	})
	m.queueEnqueues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "queue_enqueues_total",
		Help:      "Jobs accepted by the queue.",
	})
	m.queueRejects = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "queue_rejects_total",
		Help:      "Jobs rejected by the queue, by reason.",
	}, []string{"reason"})
	m.workerActiveCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "worker_active_count",
		Help:      "Workers currently provisioned.",
	})
	m.finalizeDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "aggregate_finalize_duration_seconds",
		Help:      "Time spent reducing trial results to an aggregate.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	m.runsCompleted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "runs_completed_total",
		Help:      "Simulation sessions finished, by terminal state.",
	}, []string{"state"})

	return m
}

// GetRegistry returns the registry backing the global manager, for exposing
// a scrape endpoint.
func GetRegistry() *prometheus.Registry { return customRegistry }

// Handler returns an HTTP handler serving the global metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// Package-level recording helpers backed by the global manager.

func RecordTrialStarted() { globalManager.trialsStarted.Inc() }
func RecordTrialResolved(status string) {
	globalManager.trialsResolved.WithLabelValues(status).Inc()
}
func ObserveTrialDuration(seconds float64) { globalManager.trialDuration.Observe(seconds) }

func UpdateQueueSize(n int)     { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }
func RecordQueueEnqueue()       { globalManager.queueEnqueues.Inc() }
func RecordQueueReject(reason string) {
	globalManager.queueRejects.WithLabelValues(reason).Inc()
}

func UpdateWorkerActiveCount(n int) { globalManager.workerActiveCount.Set(float64(n)) }

func ObserveFinalizeDuration(seconds float64) { globalManager.finalizeDuration.Observe(seconds) }
func RecordRunCompleted(state string) {
	globalManager.runsCompleted.WithLabelValues(state).Inc()
}
