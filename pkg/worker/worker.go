package worker

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/dispatch/pkg/sockets"
)

// Worker processes connections accepted on one listener.
type Worker interface {
	// Install prepares the worker. A non-nil error marks the worker as failed
	// to initialize and MainLoop is not called.
	Install() error

	// MainLoop serves until ctx is cancelled or the listener fails.
	// Returning nil after cancellation is a normal exit.
	MainLoop(ctx context.Context) error

	// Idle reports whether the worker is waiting for a connection.
	Idle() bool
}

// Core is the view of the request handler that workers may call back into.
type Core interface {
	// SoftShutdown requests a soft shutdown of the whole process.
	SoftShutdown()
}

// Factory constructs a worker bound to opts.Listener.
type Factory func(core Core, opts Options) (Worker, error)

// Options describes the socket a worker is bound to.
type Options struct {
	// Listener is the worker's private listener.
	Listener net.Listener

	// SocketName is the human label: "main socket" or "HTTP socket".
	SocketName string

	// Protocol is the protocol spoken on the socket.
	Protocol sockets.Protocol

	// Shared holds options common to every worker of a handler.
	Shared Shared
}

// Socket labels used in Options.SocketName.
const (
	MainSocketName = "main socket"
	HTTPSocketName = "HTTP socket"
)

// Shared holds options passed unchanged to every worker.
type Shared struct {
	// App handles requests on the session protocol.
	App http.Handler

	// Status handles requests on the http protocol.
	Status http.Handler

	AppGroupName string

	// ConnectPassword, when set, must be presented by clients of the session
	// protocol in the X-Connect-Password header.
	ConnectPassword string

	// Analytics receives one record per served request. Nil disables it.
	Analytics *slog.Logger

	// MemoryLimitMB triggers a soft shutdown once heap usage exceeds it.
	// 0 disables the limit.
	MemoryLimitMB int

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Observer Observer
}

// Observer is notified of every served request.
type Observer interface {
	RequestServed(protocol string, status int, duration time.Duration)
}
