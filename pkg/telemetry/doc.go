// Package telemetry groups the observability packages of the request
// handler.
//
// # Components
//
//   - logging: slog construction, secret redaction and request-scoped loggers
//   - metrics: Prometheus collectors for requests, workers and the main loop
//   - tracing: OpenTelemetry spans around requests and soft shutdown phases
//   - health: liveness and readiness probes served on the HTTP socket
//   - status: the status report printed on SIGQUIT/SIGABRT and on a schedule
//
// Every component is optional. A handler built without them logs through a
// discarding logger, records no metrics and starts no-op spans.
package telemetry
