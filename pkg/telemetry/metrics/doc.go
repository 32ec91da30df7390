// Package metrics provides Prometheus metrics for Mercator Dispatch.
//
// # Metrics Categories
//
//   - Request Metrics: requests served by protocol and status class, and
//     their duration
//   - Worker Metrics: live and idle workers, initialization failures
//   - Lifecycle Metrics: main loop generation, running flag, exit reasons
//     and the soft shutdown state
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	// Workers report served requests
//	collector.RequestServed("session", 200, 35*time.Millisecond)
//
//	// The pool reports its inventory
//	collector.WorkersLive(5)
//
// Collector satisfies both worker.Observer and pool.Recorder, so a single
// value is handed to every component.
//
// # Prometheus Endpoint
//
// Metrics are served on the secondary ("http") endpoint at the configured
// path, typically /metrics:
//
//	# HELP mercator_dispatch_workers_live Number of live worker slots
//	# TYPE mercator_dispatch_workers_live gauge
//	mercator_dispatch_workers_live 5
package metrics
