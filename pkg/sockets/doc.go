// Package sockets provisions the listening endpoints a dispatch process
// serves on.
//
// Every process owns exactly two endpoints. The primary endpoint, named
// "main", carries the session protocol and is shared by all request workers.
// It is a unix domain socket inside the runtime directory unless unix sockets
// are disabled, in which case it falls back to loopback TCP. The secondary
// endpoint, named "http", is always loopback TCP on an ephemeral port and
// carries plain HTTP for status and metrics.
//
// Sockets are created close-on-exec with a fixed listen backlog of 500.
// Each worker obtains its own listener through Endpoint.Dup so that
// interrupting one worker never closes the socket for the others.
package sockets
