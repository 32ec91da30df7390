package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/dispatch/pkg/config"
)

// WorkerMetrics tracks the worker pool.
//
// Metrics:
//   - workers_live: live worker slots
//   - workers_idle: live workers waiting for a connection, sampled at scrape
//   - worker_init_failures_total: workers that failed to initialize
type WorkerMetrics struct {
	live         prometheus.Gauge
	idle         prometheus.GaugeFunc
	initFailures prometheus.Counter

	mu         sync.RWMutex
	idleSource func() int
}

// NewWorkerMetrics creates and registers worker metrics with the provided registry.
func NewWorkerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *WorkerMetrics {
	wm := &WorkerMetrics{
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "workers_live",
			Help:      "Number of live worker slots",
		}),
		initFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "worker_init_failures_total",
			Help:      "Total number of workers that failed to initialize",
		}),
	}
	wm.idle = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "workers_idle",
		Help:      "Number of live workers waiting for a connection",
	}, wm.sampleIdle)

	registry.MustRegister(wm.live, wm.idle, wm.initFailures)
	return wm
}

func (wm *WorkerMetrics) setIdleSource(fn func() int) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.idleSource = fn
}

func (wm *WorkerMetrics) sampleIdle() float64 {
	wm.mu.RLock()
	fn := wm.idleSource
	wm.mu.RUnlock()
	if fn == nil {
		return 0
	}
	return float64(fn())
}
