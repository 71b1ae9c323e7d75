// Package metrics exposes run progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harun/sheetflow/pkg/orchestrator"
	"github.com/harun/sheetflow/pkg/resilience"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal           prometheus.Counter
	TasksCompletedTotal *prometheus.CounterVec
	TasksFailedTotal    *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec
	RetriesTotal        *prometheus.CounterVec
	BreakerState        *prometheus.GaugeVec

	mu      sync.Mutex
	started map[string]time.Time
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  make(map[string]time.Time),

		RunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sheetflow_runs_total",
				Help: "Total number of processing runs",
			},
		),
		TasksCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetflow_tasks_completed_total",
				Help: "Total number of tasks completed successfully",
			},
			[]string{"service"},
		),
		TasksFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetflow_tasks_failed_total",
				Help: "Total number of tasks that failed",
			},
			[]string{"service"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sheetflow_task_duration_seconds",
				Help:    "Time from task start to completion or failure",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"service"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetflow_retries_total",
				Help: "Total number of task retries",
			},
			[]string{"service", "kind"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sheetflow_breaker_state",
				Help: "Circuit breaker state per service (0 closed, 1 open, 2 half-open)",
			},
			[]string{"service"},
		),
	}

	m.registry.MustRegister(m.RunsTotal)
	m.registry.MustRegister(m.TasksCompletedTotal)
	m.registry.MustRegister(m.TasksFailedTotal)
	m.registry.MustRegister(m.TaskDuration)
	m.registry.MustRegister(m.RetriesTotal)
	m.registry.MustRegister(m.BreakerState)

	return m
}

// Record updates metrics from one run event.
func (m *Metrics) Record(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventRunStarted:
		m.RunsTotal.Inc()
	case orchestrator.EventTaskStarted:
		m.mu.Lock()
		m.started[ev.TaskID] = ev.Timestamp
		m.mu.Unlock()
	case orchestrator.EventTaskCompleted:
		m.TasksCompletedTotal.WithLabelValues(ev.Service).Inc()
		m.observeDuration(ev)
	case orchestrator.EventTaskFailed:
		m.TasksFailedTotal.WithLabelValues(ev.Service).Inc()
		m.observeDuration(ev)
	}
}

func (m *Metrics) observeDuration(ev orchestrator.Event) {
	m.mu.Lock()
	started, ok := m.started[ev.TaskID]
	delete(m.started, ev.TaskID)
	m.mu.Unlock()
	if ok {
		m.TaskDuration.WithLabelValues(ev.Service).Observe(ev.Timestamp.Sub(started).Seconds())
	}
}

// Watch consumes events until the channel closes. Run it in a goroutine
// with a channel from the orchestrator's event bus.
func (m *Metrics) Watch(events <-chan orchestrator.Event) {
	for ev := range events {
		m.Record(ev)
	}
}

// RetryHook returns a callback for resilience.Manager.OnRetry.
func (m *Metrics) RetryHook() func(service string, kind resilience.Kind, attempt int) {
	return func(service string, kind resilience.Kind, attempt int) {
		m.RetriesTotal.WithLabelValues(service, kind.String()).Inc()
	}
}

// SetBreakerState records the current circuit state for a service.
func (m *Metrics) SetBreakerState(service string, state resilience.BreakerState) {
	m.BreakerState.WithLabelValues(service).Set(float64(state))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
