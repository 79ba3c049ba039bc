// Package metrics exposes Prometheus collectors for backend calls,
// submissions and live sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Collector struct {
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	submissions     *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	generationCost  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers every collector on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.backendCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Total number of backend calls",
		},
		[]string{"backend", "operation", "status"},
	)

	c.backendDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Backend call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend", "operation"},
	)

	c.submissions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of submissions",
		},
		[]string{"status"},
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently open",
		},
	)

	c.generationCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cost_usd_total",
			Help:      "Estimated generation cost in USD",
		},
		[]string{"backend"},
	)

	return c
}

// RecordBackendCall records one generate or refine call. A nil Collector is a no-op.
func (c *Collector) RecordBackendCall(backend, operation string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	c.backendCalls.WithLabelValues(backend, operation, status).Inc()
	c.backendDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())

	c.logger.Debug("backend call recorded",
		zap.String("backend", backend),
		zap.String("operation", operation),
		zap.String("status", status),
		zap.Duration("duration", duration),
	)
}

func (c *Collector) RecordSubmission(status string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(status).Inc()
}

func (c *Collector) RecordCost(backend string, usd float64) {
	if c == nil || usd <= 0 {
		return
	}
	c.generationCost.WithLabelValues(backend).Add(usd)
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}
