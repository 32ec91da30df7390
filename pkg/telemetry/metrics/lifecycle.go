package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/dispatch/pkg/config"
)

// LifecycleMetrics tracks the control-plane loop and soft shutdown.
//
// Metrics:
//   - main_loop_generation: current lifecycle generation
//   - main_loop_running: 1 while the loop runs
//   - main_loop_exits_total: loop exits by reason
//   - soft_shutdown_state: 0 idle, 1 detaching, 2 draining, 3 lingering,
//     4 signaling exit, 5 done
type LifecycleMetrics struct {
	generation        prometheus.Gauge
	running           prometheus.Gauge
	exits             *prometheus.CounterVec
	softShutdownState prometheus.Gauge
}

// NewLifecycleMetrics creates and registers lifecycle metrics with the provided registry.
func NewLifecycleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LifecycleMetrics {
	lm := &LifecycleMetrics{
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "main_loop_generation",
			Help:      "Lifecycle generation counter of the main loop",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "main_loop_running",
			Help:      "Whether the main loop is running (1) or not (0)",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "main_loop_exits_total",
			Help:      "Total number of main loop exits by reason",
		}, []string{"reason"}),
		softShutdownState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "soft_shutdown_state",
			Help:      "Soft shutdown progress: 0 idle, 1 detaching, 2 draining, 3 lingering, 4 signaling exit, 5 done",
		}),
	}

	registry.MustRegister(lm.generation, lm.running, lm.exits, lm.softShutdownState)
	return lm
}
