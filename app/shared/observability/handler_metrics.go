package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusHandlerMetrics counts message handler outcomes.
type PrometheusHandlerMetrics struct {
	attempts  *prometheus.CounterVec
	successes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusHandlerMetrics registers the handler collectors on registry.
func NewPrometheusHandlerMetrics(registry prometheus.Registerer) (*PrometheusHandlerMetrics, error) {
	m := &PrometheusHandlerMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Subsystem: "handler", Name: "attempts_total",
			Help: "Messages received by a handler.",
		}, []string{"handler"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Subsystem: "handler", Name: "success_total",
			Help: "Messages a handler completed.",
		}, []string{"handler"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Subsystem: "handler", Name: "failures_total",
			Help: "Messages a handler failed or dropped.",
		}, []string{"handler"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raffle", Subsystem: "handler", Name: "duration_seconds",
			Help:    "Handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
	}
	for _, c := range []prometheus.Collector{m.attempts, m.successes, m.failures, m.durations} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusHandlerMetrics) RecordHandlerAttempt(_ context.Context, handlerName string) {
	m.attempts.WithLabelValues(handlerName).Inc()
}

func (m *PrometheusHandlerMetrics) RecordHandlerSuccess(_ context.Context, handlerName string) {
	m.successes.WithLabelValues(handlerName).Inc()
}

func (m *PrometheusHandlerMetrics) RecordHandlerFailure(_ context.Context, handlerName string) {
	m.failures.WithLabelValues(handlerName).Inc()
}

func (m *PrometheusHandlerMetrics) RecordHandlerDuration(_ context.Context, handlerName string, duration time.Duration) {
	m.durations.WithLabelValues(handlerName).Observe(duration.Seconds())
}
