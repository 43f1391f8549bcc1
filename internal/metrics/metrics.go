// Package metrics exports invocation metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aopdemo"

// Collector implements aop.MetricsCollector on a Prometheus registry
type Collector struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "invocations",
				Name:      "total",
				Help:      "Total number of intercepted invocations.",
			},
			[]string{"signature"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "invocations",
				Name:      "duration_seconds",
				Help:      "Duration of intercepted invocations.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13), // 1ms to ~4s
			},
			[]string{"signature"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "invocations",
				Name:      "errors_total",
				Help:      "Total number of failed invocations.",
			},
			[]string{"signature", "type"},
		),
	}

	c.registry.MustRegister(
		c.invocations,
		c.duration,
		c.errors,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return c
}

// IncrementInvocationCount implements aop.MetricsCollector
func (c *Collector) IncrementInvocationCount(signature string) {
	c.invocations.WithLabelValues(signature).Inc()
}

// RecordExecutionTime implements aop.MetricsCollector
func (c *Collector) RecordExecutionTime(signature string, duration time.Duration) {
	c.duration.WithLabelValues(signature).Observe(duration.Seconds())
}

// IncrementErrorCount implements aop.MetricsCollector
func (c *Collector) IncrementErrorCount(signature string, errorType string) {
	c.errors.WithLabelValues(signature, errorType).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
