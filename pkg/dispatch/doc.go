// Package dispatch implements the request handler: the process-level
// controller that owns the listening endpoints, runs a pool of workers on
// them and decides when the process should stop.
//
// # Lifecycle
//
//	h, err := dispatch.New(os.Stdin, dispatch.Options{
//	    App:          app,
//	    AppGroupName: "/srv/app",
//	    Concurrency:  4,
//	})
//	if err != nil {
//	    return err
//	}
//	defer h.Cleanup()
//
//	reason, err := h.MainLoop(ctx)
//
// New provisions the endpoints. MainLoop arms the signal handlers, starts
// the workers and blocks until either the owner pipe or the graceful
// termination pipe becomes readable. The owner pipe is handed in by the
// parent process; it closes when the parent dies. The graceful termination
// pipe is private to each main loop run and is closed by a soft shutdown or
// by cancelling the context passed to MainLoop.
//
// On every exit path MainLoop interrupts and joins the workers, restores
// the signal dispositions it replaced and advances the generation counter.
// The counter advances once on entry and once on exit, so a completed run
// adds two. WaitForGeneration lets other goroutines block on it.
//
// # Soft shutdown
//
// SoftShutdown, also bound to SIGUSR1, detaches the process from the
// upstream pool when credentials are configured, waits until every worker
// is idle, lingers for the configured time and then closes the graceful
// termination pipe. Only the first call has an effect.
//
// # Signals
//
// While the main loop runs, SIGHUP is ignored, SIGUSR1 starts a soft
// shutdown, SIGQUIT and SIGABRT print the status report to stderr and
// every other signal has its default disposition. SIGTERM therefore ends
// the process immediately.
package dispatch
