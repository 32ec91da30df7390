package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/dispatch/pkg/config"
)

// Collector owns every dispatch metric and the registry they live in.
// When metrics are disabled all recording methods are no-ops.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry
	enabled  bool

	requestMetrics   *RequestMetrics
	workerMetrics    *WorkerMetrics
	lifecycleMetrics *LifecycleMetrics
}

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil, a new registry is created.
//
// Example:
//
//	collector := metrics.NewCollector(&config.MetricsConfig{
//		Namespace: "mercator",
//		Subsystem: "dispatch",
//	}, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultMetricsPath
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = config.DefaultRequestDurationBuckets
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		enabled:  cfg.IsEnabled(),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.workerMetrics = NewWorkerMetrics(cfg, registry)
	c.lifecycleMetrics = NewLifecycleMetrics(cfg, registry)

	return c
}

// RequestServed records a completed request.
func (c *Collector) RequestServed(protocol string, status int, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.requestMetrics.Record(protocol, status, duration)
}

// WorkersLive sets the number of live worker slots.
func (c *Collector) WorkersLive(n int) {
	if !c.enabled {
		return
	}
	c.workerMetrics.live.Set(float64(n))
}

// WorkerInitFailed counts a worker that failed to initialize.
func (c *Collector) WorkerInitFailed() {
	if !c.enabled {
		return
	}
	c.workerMetrics.initFailures.Inc()
}

// SetIdleSource registers the function sampled for the idle worker gauge.
func (c *Collector) SetIdleSource(fn func() int) {
	c.workerMetrics.setIdleSource(fn)
}

// LoopEntered records entry into the control-plane loop.
func (c *Collector) LoopEntered(generation uint64) {
	if !c.enabled {
		return
	}
	c.lifecycleMetrics.generation.Set(float64(generation))
	c.lifecycleMetrics.running.Set(1)
}

// LoopExited records a control-plane loop exit and its reason.
func (c *Collector) LoopExited(reason string, generation uint64) {
	if !c.enabled {
		return
	}
	c.lifecycleMetrics.generation.Set(float64(generation))
	c.lifecycleMetrics.running.Set(0)
	c.lifecycleMetrics.exits.WithLabelValues(reason).Inc()
}

// SoftShutdownState records the soft shutdown state as an ordinal.
func (c *Collector) SoftShutdownState(state int) {
	if !c.enabled {
		return
	}
	c.lifecycleMetrics.softShutdownState.Set(float64(state))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Path returns the HTTP path metrics are served under.
func (c *Collector) Path() string {
	return c.config.Path
}

// Enabled reports whether metrics are recorded.
func (c *Collector) Enabled() bool {
	return c.enabled
}
