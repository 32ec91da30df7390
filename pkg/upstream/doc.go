// Package upstream talks to the administration endpoint of the process pool
// that spawned this process.
//
// The only operation is Detach, which removes this process from the pool
// during a soft shutdown so that no new sessions are routed to it. Clients
// are obtained from a Dialer; HTTPDialer reaches the endpoint over TCP or,
// for "unix:/path" addresses, over a unix domain socket.
package upstream
