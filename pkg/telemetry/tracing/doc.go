// Package tracing provides OpenTelemetry tracing for Mercator Dispatch.
//
// # Overview
//
// When enabled, spans are exported over OTLP/gRPC. When disabled, a noop
// tracer is used and span creation costs next to nothing, so callers never
// need to check whether tracing is on.
//
// Spans produced by the process:
//
//	dispatch.request              one per request served by a worker
//	dispatch.soft_shutdown        the whole soft shutdown sequence
//	dispatch.soft_shutdown.<phase> detaching, draining, lingering
//
// Incoming W3C trace context (traceparent/tracestate) on the session
// protocol is extracted so request spans join the caller's trace.
//
// # Sampling Strategies
//
//   - always: Sample all traces
//   - never: Sample no traces
//   - ratio: Sample a fraction of traces by trace ID
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "dispatch.soft_shutdown")
//	defer span.End()
package tracing
