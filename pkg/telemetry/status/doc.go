// Package status renders the request handler's status report.
//
// The report lists the endpoints, the main loop generation and the worker
// slot inventory, followed by every goroutine's stack. It is printed to
// stderr when the process receives SIGQUIT or SIGABRT, served as JSON on
// the HTTP socket under /status, and can be logged periodically by a
// Scheduler driven by a cron expression.
package status
