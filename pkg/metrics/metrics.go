package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Experiment metrics
	AssignmentsCreated  *prometheus.CounterVec
	AssignmentsReused   prometheus.Counter
	ConversionsRecorded *prometheus.CounterVec
	DefaultConfigServed *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		AssignmentsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experiment_assignments_created_total",
				Help: "Total number of new variant assignments persisted",
			},
			[]string{"variant"},
		),
		AssignmentsReused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experiment_assignments_reused_total",
			Help: "Total number of assignment requests answered from an existing assignment",
		}),
		ConversionsRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experiment_conversions_recorded_total",
				Help: "Total number of conversion events recorded",
			},
			[]string{"type"}, // click, rating, comment
		),
		DefaultConfigServed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "experiment_default_config_served_total",
				Help: "Total number of requests answered with the default configuration",
			},
			[]string{"reason"}, // no_subject, no_experiment, inactive, unknown_test_type, store_error
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, not the raw URL

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)

			return err
		}
	}
}

// RecordAssignment increments the created or reused assignment counters
func (m *Metrics) RecordAssignment(variant string, created bool) {
	if created {
		m.AssignmentsCreated.WithLabelValues(variant).Inc()
		return
	}
	m.AssignmentsReused.Inc()
}

// RecordConversion increments the conversions recorded counter
func (m *Metrics) RecordConversion(conversionType string) {
	m.ConversionsRecorded.WithLabelValues(conversionType).Inc()
}

// RecordDefaultServed increments the default configuration counter
func (m *Metrics) RecordDefaultServed(reason string) {
	m.DefaultConfigServed.WithLabelValues(reason).Inc()
}
