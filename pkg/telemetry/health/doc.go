// Package health serves the liveness and readiness probes of a request
// handler on its HTTP socket.
//
// Liveness only reports that the process answers. Readiness runs every
// registered probe concurrently, each bounded by the checker timeout, and
// answers 503 as soon as one of them fails. The built-in probes cover the
// handler lifecycle:
//
//   - LoopRunning: the control-plane loop is waiting on the owner pipe
//   - WorkersLive: at least the configured number of workers are serving
//   - NotShuttingDown: no soft shutdown has started
//
// Usage:
//
//	checker := health.New(time.Second)
//	checker.RegisterCheck("main_loop", health.LoopRunning(h.MainLoopRunning))
//	checker.RegisterCheck("workers", health.WorkersLive(h.LiveWorkers, 4))
//	health.Register(mux, checker, version)
//
// Readiness response (/ready):
//
//	{
//	    "status": "draining",
//	    "checks": {
//	        "main_loop": {"status": "ok"},
//	        "soft_shutdown": {"status": "unhealthy", "message": "soft shutdown in progress: draining"}
//	    },
//	    "timestamp": "2026-10-17T10:30:00Z"
//	}
package health
