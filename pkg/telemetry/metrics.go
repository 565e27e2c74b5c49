package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the appdock engine.
type Metrics struct {
	config MetricsConfig

	// Lifecycle metrics
	transitionsAccepted  *prometheus.CounterVec
	transitionsDropped   *prometheus.CounterVec
	watchersActive       prometheus.Gauge
	notificationsDropped prometheus.Counter

	// Log service metrics
	logLinesAppended *prometheus.CounterVec

	// Image pipeline metrics
	imageSteps        *prometheus.CounterVec
	imageStepDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance; all record methods nil-check their collectors.
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		transitionsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Total number of accepted resource state transitions",
			},
			[]string{"state"},
		),
		transitionsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_dropped_total",
				Help:      "Total number of out-of-order state reports dropped",
			},
			[]string{"resource"},
		),
		watchersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state_watchers_active",
				Help:      "Current number of active state watchers",
			},
		),
		notificationsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Total number of notifications dropped on slow watchers",
			},
		),
		logLinesAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_lines_total",
				Help:      "Total number of log lines appended",
			},
			[]string{"stream"},
		),
		imageSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_steps_total",
				Help:      "Total number of image pipeline steps by outcome",
			},
			[]string{"step", "status"},
		),
		imageStepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "image_step_duration_seconds",
				Help:      "Duration of image pipeline steps in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),
	}

	collectors := []prometheus.Collector{
		m.transitionsAccepted,
		m.transitionsDropped,
		m.watchersActive,
		m.notificationsDropped,
		m.logLinesAppended,
		m.imageSteps,
		m.imageStepDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// RecordTransition records an accepted state transition.
func (m *Metrics) RecordTransition(state string) {
	if m.transitionsAccepted == nil {
		return
	}
	m.transitionsAccepted.WithLabelValues(state).Inc()
}

// RecordDroppedTransition records a dropped out-of-order state report.
func (m *Metrics) RecordDroppedTransition(resource string) {
	if m.transitionsDropped == nil {
		return
	}
	m.transitionsDropped.WithLabelValues(resource).Inc()
}

// WatcherAdded increments the active watcher gauge.
func (m *Metrics) WatcherAdded() {
	if m.watchersActive == nil {
		return
	}
	m.watchersActive.Inc()
}

// WatcherRemoved decrements the active watcher gauge.
func (m *Metrics) WatcherRemoved() {
	if m.watchersActive == nil {
		return
	}
	m.watchersActive.Dec()
}

// RecordNotificationDropped records a notification dropped on a slow watcher.
func (m *Metrics) RecordNotificationDropped() {
	if m.notificationsDropped == nil {
		return
	}
	m.notificationsDropped.Inc()
}

// RecordLogLine records an appended log line.
func (m *Metrics) RecordLogLine(stream string) {
	if m.logLinesAppended == nil {
		return
	}
	m.logLinesAppended.WithLabelValues(stream).Inc()
}

// RecordImageStep records an image pipeline step outcome and duration.
func (m *Metrics) RecordImageStep(step, status string, seconds float64) {
	if m.imageSteps == nil {
		return
	}
	m.imageSteps.WithLabelValues(step, status).Inc()
	m.imageStepDuration.WithLabelValues(step).Observe(seconds)
}

// Handler returns an http.Handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
