// Package metrics exposes Prometheus instrumentation for browsing-data removal.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "browsing_data"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	RemovalsStarted   *prometheus.CounterVec
	RemovalsCompleted *prometheus.CounterVec
	RemovalDuration   prometheus.Histogram
	RemovalsInFlight  prometheus.Gauge

	CategoryDispatched *prometheus.CounterVec
	CategorySkipped    *prometheus.CounterVec
	BackendFailures    *prometheus.CounterVec
	ItemsDeleted       *prometheus.CounterVec

	ScheduledRuns *prometheus.CounterVec

	EventsPublished    *prometheus.CounterVec
	EventHandlerPanics *prometheus.CounterVec
}

// New registers every metric on a fresh registry. Pass withRuntime to also
// export Go runtime and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RemovalsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "removals_started_total",
				Help:      "Removal requests started, by time period and origin scope.",
			},
			[]string{"period", "scope"},
		),
		RemovalsCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "removals_completed_total",
				Help:      "Removal requests that delivered their completion notification.",
			},
			[]string{"period", "scope"},
		),
		RemovalDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "removal_duration_seconds",
				Help:      "Time from dispatch to completion of a removal request.",
				Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		RemovalsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "removals_in_flight",
				Help:      "Removal requests dispatched but not yet complete.",
			},
		),
		CategoryDispatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "category_dispatched_total",
				Help:      "Deletion tasks dispatched, by backend.",
			},
			[]string{"backend"},
		),
		CategorySkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "category_skipped_total",
				Help:      "Requested data types that were not dispatched, by data type and reason.",
			},
			[]string{"data_type", "reason"},
		),
		BackendFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_failures_total",
				Help:      "Errors reported by deletion backends.",
			},
			[]string{"backend"},
		),
		ItemsDeleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_deleted_total",
				Help:      "Rows or files deleted by backends.",
			},
			[]string{"backend"},
		),
		ScheduledRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_runs_total",
				Help:      "Scheduled task executions, by task and outcome.",
			},
			[]string{"task", "outcome"},
		),
		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Events published on the notification bus, by type.",
			},
			[]string{"type"},
		),
		EventHandlerPanics: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_panics_total",
				Help:      "Event handlers that panicked, by event type.",
			},
			[]string{"type"},
		),
	}
}

// Registry returns the registry the metrics live on.
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

// ObserveRemovalStarted records a dispatched request.
func (m *Metrics) ObserveRemovalStarted(period, scope string) {
	if m == nil {
		return
	}
	m.RemovalsStarted.WithLabelValues(period, scope).Inc()
	m.RemovalsInFlight.Inc()
}

// ObserveRemovalCompleted records a finished request.
func (m *Metrics) ObserveRemovalCompleted(period, scope string, took time.Duration) {
	if m == nil {
		return
	}
	m.RemovalsCompleted.WithLabelValues(period, scope).Inc()
	m.RemovalsInFlight.Dec()
	m.RemovalDuration.Observe(took.Seconds())
}

// ObserveDispatch records one deletion task handed to a backend.
func (m *Metrics) ObserveDispatch(backend string) {
	if m == nil {
		return
	}
	m.CategoryDispatched.WithLabelValues(backend).Inc()
}

// ObserveSkipped records a requested data type that was not dispatched.
func (m *Metrics) ObserveSkipped(dataType, reason string) {
	if m == nil {
		return
	}
	m.CategorySkipped.WithLabelValues(dataType, reason).Inc()
}

// ObserveBackendFailure records an error a backend swallowed.
func (m *Metrics) ObserveBackendFailure(backend string) {
	if m == nil {
		return
	}
	m.BackendFailures.WithLabelValues(backend).Inc()
}

// ObserveDeleted records how many items a backend removed.
func (m *Metrics) ObserveDeleted(backend string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsDeleted.WithLabelValues(backend).Add(float64(n))
}

// ObserveScheduledRun records one scheduled task execution.
func (m *Metrics) ObserveScheduledRun(task string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ScheduledRuns.WithLabelValues(task, outcome).Inc()
}

// ObserveEventPublished records one event published on the bus.
func (m *Metrics) ObserveEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveHandlerPanic records an event handler that panicked.
func (m *Metrics) ObserveHandlerPanic(eventType string) {
	if m == nil {
		return
	}
	m.EventHandlerPanics.WithLabelValues(eventType).Inc()
}
