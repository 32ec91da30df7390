// Dispatch is the backend request handler of an application server.
//
// It is started by a process pool, provisions a unix domain socket for
// application sessions and a loopback HTTP socket for probes and metrics,
// advertises both on stdout and serves them with a pool of workers until
// its owner pipe closes or a soft shutdown completes.
//
// Usage:
//
//	# Serve ./public for app group "/srv/app", owner pipe on stdin
//	dispatch run --app-group-name /srv/app
//
//	# Use a configuration file and four workers
//	dispatch run --config /etc/dispatch/config.yaml --concurrency 4
//
//	# Check a configuration file
//	dispatch validate --config /etc/dispatch/config.yaml
//
//	# Show version information
//	dispatch version
//
// Signals while running: SIGUSR1 starts a soft shutdown, SIGQUIT and
// SIGABRT print a status report to stderr, SIGTERM exits immediately.
package main

func main() {
	Execute()
}
