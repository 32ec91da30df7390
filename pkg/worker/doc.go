// Package worker defines the unit of request processing bound to one
// listening socket, and ships a reference implementation.
//
// A Worker is created by a Factory, prepared with Install, and then runs
// MainLoop until its context is cancelled. Cancellation is the only way a
// worker is interrupted: the worker closes its private listener and any
// connection it is serving, except while it is inside its guarded section
// (writing a response), in which case the interruption takes effect once the
// section ends.
//
// The reference worker, Unit, serves one connection at a time. On the
// session protocol it reads HTTP/1.x requests and hands them to the
// application handler; on the http protocol it serves the status handler.
package worker
