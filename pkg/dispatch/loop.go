package dispatch

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/dispatch/pkg/pool"
	"mercator-hq/dispatch/pkg/signals"
)

// ExitReason tells why the main loop returned.
type ExitReason string

const (
	// ExitNone is returned together with an error.
	ExitNone ExitReason = ""

	// ExitOwnerPipeClosed means the parent process went away.
	ExitOwnerPipeClosed ExitReason = "owner_pipe_closed"

	// ExitGracefulPipeClosed means a soft shutdown completed or the main
	// loop context was cancelled.
	ExitGracefulPipeClosed ExitReason = "graceful_pipe_closed"
)

// Describe returns the log message for the reason.
func (r ExitReason) Describe() string {
	switch r {
	case ExitOwnerPipeClosed:
		return "Owner pipe closed"
	case ExitGracefulPipeClosed:
		return "Graceful termination pipe closed"
	default:
		return "Main loop failed"
	}
}

type loopThread struct {
	done   chan struct{}
	err    error
	exited bool
}

// MainLoop runs the request handler until the owner pipe or the graceful
// termination pipe closes. Cancelling ctx, or SIGINT while the loop runs,
// closes the graceful termination pipe. Only one MainLoop may run at a time; it may be entered again after
// it returned.
//
// A worker initialization failure is returned as a *pool.InitError. A panic
// is re-raised after the workers were terminated and the signal
// dispositions restored.
func (h *RequestHandler) MainLoop(ctx context.Context) (reason ExitReason, err error) {
	h.loopMu.Lock()
	if h.closed {
		h.loopMu.Unlock()
		return ExitNone, ErrClosed
	}
	if h.running {
		h.loopMu.Unlock()
		return ExitNone, ErrMainLoopRunning
	}
	pipe, err := newGracefulPipe()
	if err != nil {
		h.loopMu.Unlock()
		return ExitNone, err
	}
	h.graceful = pipe
	h.generation++
	h.iterations++
	h.running = true
	gen := h.generation
	h.loopCond.Broadcast()
	h.loopMu.Unlock()

	h.metrics.LoopEntered(gen)
	h.logger.Debug("entering request handler main loop", "generation", gen)

	stop := context.AfterFunc(ctx, pipe.closeWriter)
	defer func() {
		stop()
		rec := recover()
		h.exitLoop(pipe, reason, err, rec)
		if rec != nil {
			panic(rec)
		}
	}()

	if err := h.router.Arm(signals.Hooks{
		SoftShutdown: h.SoftShutdown,
		StatusReport: h.printStatusReport,
		Interrupt: func() {
			h.logger.Info("interrupted, leaving main loop")
			pipe.closeWriter()
		},
	}); err != nil {
		return ExitNone, fmt.Errorf("arm signal handlers: %w", err)
	}

	if err := h.pool.Start(ctx, pool.Spec{
		Concurrency: h.opts.Concurrency,
		Primary:     h.primary,
		Secondary:   h.secondary,
		Factory:     h.opts.WorkerFactory,
		Core:        h,
		Shared:      h.shared(),
	}); err != nil {
		h.logger.Error("failed to start workers", "error", err)
		return ExitNone, err
	}

	reason, err = waitReadable(h.ownerFD, pipe.r)
	if err != nil {
		h.logger.Error("main loop interrupted", "error", err)
		return ExitNone, err
	}
	h.logger.Debug(reason.Describe())
	return reason, nil
}

// exitLoop runs on every main loop exit path.
func (h *RequestHandler) exitLoop(pipe *gracefulPipe, reason ExitReason, err error, rec any) {
	h.pool.TerminateAll()
	h.router.Disarm()

	h.loopMu.Lock()
	pipe.closeWriter()
	pipe.closeReader()
	h.graceful = nil
	h.generation++
	h.running = false
	gen := h.generation
	h.loopCond.Broadcast()
	h.loopMu.Unlock()

	label := string(reason)
	switch {
	case rec != nil:
		label = "panic"
		h.logger.Error("main loop panicked", "panic", rec)
	case err != nil:
		label = "error"
	}
	h.metrics.LoopExited(label, gen)
	h.logger.Debug("exiting request handler main loop", "generation", gen, "reason", label)
}

// StartMainLoopThread runs MainLoop in a new goroutine and returns once it
// has been entered. Cleanup stops it. If the goroutine fails before
// entering, its error is returned.
func (h *RequestHandler) StartMainLoopThread(ctx context.Context) error {
	t := &loopThread{done: make(chan struct{})}

	h.loopMu.Lock()
	if h.thread != nil && !h.thread.exited {
		h.loopMu.Unlock()
		return ErrMainLoopRunning
	}
	h.thread = t
	start := h.generation
	h.loopMu.Unlock()

	go func() {
		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("main loop panicked: %v", rec)
			}
			if err != nil {
				h.logger.Error("main loop thread exited with error", "error", err)
			}
			h.loopMu.Lock()
			t.err = err
			t.exited = true
			h.loopCond.Broadcast()
			h.loopMu.Unlock()
			close(t.done)
		}()
		_, err = h.MainLoop(ctx)
	}()

	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	for h.generation == start && !t.exited {
		h.loopCond.Wait()
	}
	if h.generation == start {
		return t.err
	}
	return nil
}

// Generation returns the main loop generation counter. It is incremented on
// every entry into and exit from the main loop.
func (h *RequestHandler) Generation() uint64 {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	return h.generation
}

// Iterations returns how many times the main loop has been entered.
func (h *RequestHandler) Iterations() uint64 {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	return h.iterations
}

// MainLoopRunning reports whether the main loop is running.
func (h *RequestHandler) MainLoopRunning() bool {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	return h.running
}

// WaitForGeneration blocks until the generation counter reaches at least n
// or ctx is done.
func (h *RequestHandler) WaitForGeneration(ctx context.Context, n uint64) error {
	stop := context.AfterFunc(ctx, func() {
		h.loopMu.Lock()
		h.loopCond.Broadcast()
		h.loopMu.Unlock()
	})
	defer stop()

	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	for h.generation < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.loopCond.Wait()
	}
	return nil
}

// IsInitError reports whether err is a worker initialization failure.
func IsInitError(err error) bool {
	return errors.Is(err, pool.ErrWorkerInit)
}
