package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/dispatch/pkg/telemetry/tracing"
)

// ShutdownState is the phase of a soft shutdown. Phases only move forward,
// and the numeric value is exported as the soft shutdown state metric.
type ShutdownState int32

const (
	// StateIdle means no soft shutdown was requested.
	StateIdle ShutdownState = iota

	// StateDetaching means the process is being removed from the upstream
	// pool. Skipped quickly when no credentials are configured.
	StateDetaching

	// StateDraining waits until every worker is idle.
	StateDraining

	// StateLingering sleeps for the linger time. The sleep is not
	// cancellable.
	StateLingering

	// StateSignalingExit closes the graceful termination pipe.
	StateSignalingExit

	// StateDone is final, also after a failed shutdown.
	StateDone
)

// String returns the snake_case name used in logs, metrics and health
// checks.
func (s ShutdownState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetaching:
		return "detaching"
	case StateDraining:
		return "draining"
	case StateLingering:
		return "lingering"
	case StateSignalingExit:
		return "signaling_exit"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// SoftShutdown starts a soft shutdown in the background and returns
// immediately. Only the first call per handler has an effect.
func (h *RequestHandler) SoftShutdown() {
	h.softOnce.Do(func() {
		go h.softShutdown()
	})
}

// SoftShutdownState returns the current soft shutdown phase.
func (h *RequestHandler) SoftShutdownState() ShutdownState {
	return ShutdownState(h.softState.Load())
}

// SoftShutdownDone is closed when a soft shutdown has finished.
func (h *RequestHandler) SoftShutdownDone() <-chan struct{} {
	return h.softDone
}

// shutdownPhase feeds the readiness check; empty means not shutting down.
func (h *RequestHandler) shutdownPhase() string {
	if s := h.SoftShutdownState(); s != StateIdle {
		return s.String()
	}
	return ""
}

// setSoftState records s and mirrors it to the metric.
func (h *RequestHandler) setSoftState(s ShutdownState) {
	h.softState.Store(int32(s))
	h.metrics.SoftShutdownState(int(s))
}

// softShutdown walks through every phase once. A panic in any phase is
// logged and the state still ends at StateDone.
func (h *RequestHandler) softShutdown() {
	ctx, span := h.tracer.Start(context.Background(), "dispatch.soft_shutdown",
		trace.WithAttributes(attribute.String("dispatch.app_group", h.opts.AppGroupName)),
	)
	defer close(h.softDone)
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("soft shutdown failed", "panic", rec)
			span.AddEvent("panic")
		}
		h.setSoftState(StateDone)
	}()

	h.logger.Info("soft termination initiated")

	h.setSoftState(StateDetaching)
	h.detach(ctx)

	h.setSoftState(StateDraining)
	span.AddEvent("draining")
	if err := h.pool.WaitUntilIdle(ctx); err != nil {
		h.logger.Warn("waiting for idle workers failed", "error", err)
	}

	// Reloads up to this point are honoured.
	linger := h.LingerTime()
	h.setSoftState(StateLingering)
	span.AddEvent("lingering", trace.WithAttributes(attribute.String("dispatch.linger", linger.String())))
	h.logger.Debug("soft terminating after linger time", "linger", linger)
	time.Sleep(linger)

	h.setSoftState(StateSignalingExit)
	// No-op when the main loop is not running.
	h.loopMu.Lock()
	if h.graceful != nil {
		h.graceful.closeWriter()
	}
	h.loopMu.Unlock()
}

// detach removes this process from the upstream pool. It is skipped unless
// the detach key and both pool credentials are configured.
func (h *RequestHandler) detach(ctx context.Context) {
	if h.opts.DetachKey == "" || h.opts.PoolAccountUsername == "" || h.poolPassword == "" {
		h.logger.Debug("pool detach skipped, credentials not configured")
		return
	}

	ctx, span := h.tracer.Start(ctx, "dispatch.detach")
	defer span.End()

	// Failures here are logged only; draining proceeds regardless.
	client, err := h.dialer.Dial(ctx, h.opts.PoolAccountUsername, h.poolPassword)
	if err != nil {
		tracing.SetError(span, err)
		h.logger.Warn("failed to connect to pool", "error", err)
		return
	}
	defer func() {
		if err := client.Close(); err != nil {
			h.logger.Debug("failed to close pool client", "error", err)
		}
	}()

	if err := client.Detach(ctx, h.opts.DetachKey); err != nil {
		tracing.SetError(span, err)
		h.logger.Warn("failed to detach from pool", "error", err)
		return
	}
	h.logger.Info("detached from pool")
}
