package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/dispatch/pkg/config"
)

// RequestMetrics tracks requests served by workers.
//
// Metrics:
//   - requests_total: requests by protocol and status class ("2xx", "4xx", ...)
//   - request_duration_seconds: request duration histogram by protocol
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of requests served by workers",
			},
			[]string{"protocol", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds, including the response write",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"protocol"},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration)
	return rm
}

// Record records one served request.
func (rm *RequestMetrics) Record(protocol string, status int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(protocol, statusClass(status)).Inc()
	rm.requestDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// statusClass maps 404 to "4xx". Out-of-range codes map to "other".
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
