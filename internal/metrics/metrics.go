package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harun/toolhost/pkg/tool"
)

// Metrics holds all Prometheus metrics for the tool host
type Metrics struct {
	registry *prometheus.Registry

	// Execution metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec

	// Registry metrics
	ToolHealthy *prometheus.GaugeVec

	// Loader metrics
	ToolLoadsTotal *prometheus.CounterVec
	ToolsLoaded    prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "method", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name", "method"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_execution_errors_total",
				Help: "Total number of failed tool executions by error kind",
			},
			[]string{"tool_name", "kind"},
		),

		ToolHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tool_healthy",
				Help: "1 when the registered tool is healthy, 0 otherwise",
			},
			[]string{"tool_name"},
		),

		ToolLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_loads_total",
				Help: "Total number of tool load attempts",
			},
			[]string{"source", "status"},
		),
		ToolsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tools_loaded",
				Help: "Number of tools loaded by the most recent load pass",
			},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.ToolExecutionErrorsTotal)
	m.registry.MustRegister(m.ToolHealthy)
	m.registry.MustRegister(m.ToolLoadsTotal)
	m.registry.MustRegister(m.ToolsLoaded)
}

// ExecutionFinished records one executor call.
func (m *Metrics) ExecutionFinished(toolName, method string, result tool.Result, duration time.Duration) {
	status := "success"
	if !result.Success {
		status = "error"
		m.ToolExecutionErrorsTotal.WithLabelValues(toolName, string(result.Kind)).Inc()
	}
	m.ToolExecutionsTotal.WithLabelValues(toolName, method, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName, method).Observe(duration.Seconds())
}

// ToolHealth tracks the registry's health flag for name.
func (m *Metrics) ToolHealth(name string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1
	}
	m.ToolHealthy.WithLabelValues(name).Set(value)
}

// ToolRemoved drops the health series of an unregistered tool.
func (m *Metrics) ToolRemoved(name string) {
	m.ToolHealthy.DeleteLabelValues(name)
}

// ToolLoaded records one loader attempt for a candidate from source.
func (m *Metrics) ToolLoaded(source string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ToolLoadsTotal.WithLabelValues(source, status).Inc()
}

// LoadFinished records the size of a completed load pass.
func (m *Metrics) LoadFinished(loaded, failed int) {
	m.ToolsLoaded.Set(float64(loaded))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
