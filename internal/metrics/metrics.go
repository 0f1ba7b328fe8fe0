// Package metrics exposes Prometheus instruments for executions, routing and
// downstream notifier calls.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidflow/internal/delivery"
	"vidflow/internal/pipeline"
	"vidflow/internal/router"
)

const namespace = "vidflow"

// Route decision label values.
const (
	RouteStarted = "started"
	RouteIgnored = "ignored"
	RouteFailed  = "failed"
)

// Metrics owns a registry and the vidflow instruments registered on it.
type Metrics struct {
	registry          *prometheus.Registry
	executions        *prometheus.CounterVec
	routes            *prometheus.CounterVec
	notifierCalls     *prometheus.CounterVec
	deadLetters       prometheus.Counter
	stageDuration     *prometheus.HistogramVec
	executionDuration prometheus.Histogram
	inFlight          prometheus.Gauge
}

// New registers all instruments on a fresh registry. Runtime collectors are
// included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Finished pipeline executions by terminal status.",
		}, []string{"status"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Upload events evaluated by the router.",
		}, []string{"decision"}),
		notifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifier_calls_total",
			Help:      "Downstream calls made by the change notifier.",
		}, []string{"operation", "result"}),
		deadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Downstream calls written to the dead-letter sink.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent waiting on each stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "End-to-end execution time.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_in_flight",
			Help:      "Executions currently running.",
		}),
	}
	m.registry.MustRegister(
		m.executions,
		m.routes,
		m.notifierCalls,
		m.deadLetters,
		m.stageDuration,
		m.executionDuration,
		m.inFlight,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRoute counts a router decision.
func (m *Metrics) ObserveRoute(decision router.Decision) {
	label := RouteIgnored
	switch {
	case decision.Matched && decision.ExecutionID != "":
		label = RouteStarted
	case decision.Matched:
		label = RouteFailed
	}
	m.routes.WithLabelValues(label).Inc()
}

// ObserveCall counts a notifier call result.
func (m *Metrics) ObserveCall(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.notifierCalls.WithLabelValues(operation, result).Inc()
}

// ObserveDeadLetter counts a stored dead letter. It matches the
// delivery.NewDeadLetter listener signature.
func (m *Metrics) ObserveDeadLetter(context.Context, delivery.Letter) {
	m.deadLetters.Inc()
}

// Observer returns a pipeline observer feeding the execution instruments.
func (m *Metrics) Observer() pipeline.Observer {
	return &executionObserver{m: m}
}

type executionObserver struct {
	pipeline.BaseObserver
	m *Metrics
}

func (o *executionObserver) ExecutionStarted(context.Context, pipeline.Execution) error {
	o.m.inFlight.Inc()
	return nil
}

func (o *executionObserver) StageCompleted(_ context.Context, _ pipeline.Execution, result pipeline.StageResult) error {
	o.m.stageDuration.WithLabelValues(result.Name).Observe(result.Duration().Seconds())
	return nil
}

func (o *executionObserver) ExecutionFinished(_ context.Context, exec pipeline.Execution) error {
	o.m.inFlight.Dec()
	o.m.executions.WithLabelValues(string(exec.Status)).Inc()
	o.m.executionDuration.Observe(exec.Duration().Seconds())
	return nil
}
