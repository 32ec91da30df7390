// Package signals routes process signals to handlers through an explicit
// disposition table.
//
// A Router records, per signal, whether it has the default disposition, is
// ignored, or is delivered to a handler function. Trap changes a disposition
// and returns the previous one, so callers can restore it later. Handlers run
// on a single dispatcher goroutine.
//
// Arm installs the dispatch process's signal set:
//
//	SIGHUP          ignored
//	SIGUSR1         soft shutdown (run in the background)
//	SIGABRT/SIGQUIT status report to stderr, process continues
//	everything else default disposition, including SIGTERM
//
// Disarm restores whatever dispositions were in place before Arm.
package signals
