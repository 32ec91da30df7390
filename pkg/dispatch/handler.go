package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/dispatch/pkg/config"
	"mercator-hq/dispatch/pkg/pool"
	"mercator-hq/dispatch/pkg/signals"
	"mercator-hq/dispatch/pkg/sockets"
	"mercator-hq/dispatch/pkg/telemetry/health"
	"mercator-hq/dispatch/pkg/telemetry/metrics"
	"mercator-hq/dispatch/pkg/telemetry/status"
	"mercator-hq/dispatch/pkg/upstream"
	"mercator-hq/dispatch/pkg/worker"
)

// DefaultLingerTime is how long a soft shutdown waits after the workers
// went idle.
const DefaultLingerTime = config.DefaultSoftTerminationLingerTime

var (
	// ErrNoOwnerPipe is returned by New when no owner pipe is given.
	ErrNoOwnerPipe = errors.New("owner pipe is required")

	// ErrNoAppGroupName is returned by New when AppGroupName is empty.
	ErrNoAppGroupName = errors.New("app group name is required")

	// ErrMainLoopRunning is returned by MainLoop while another run is active.
	ErrMainLoopRunning = errors.New("main loop already running")

	// ErrClosed is returned by MainLoop after Cleanup.
	ErrClosed = errors.New("request handler cleaned up")
)

// Options configures a RequestHandler.
type Options struct {
	// App handles requests arriving on the main socket.
	App http.Handler

	// AppGroupName identifies the application group. Required.
	AppGroupName string

	ConnectPassword string

	// DetachKey, PoolAccountUsername and PoolAccountPasswordBase64 must all
	// be set for a soft shutdown to detach from the upstream pool.
	DetachKey                 string
	PoolAccountUsername       string
	PoolAccountPasswordBase64 string

	// PoolDialer opens the upstream pool client. Nil dials
	// PoolAdminAddress over HTTP.
	PoolDialer       upstream.Dialer
	PoolAdminAddress string
	PoolTimeout      time.Duration

	// Analytics receives one record per request. Nil disables it.
	Analytics *slog.Logger

	// MemoryLimit in MB; 0 disables it.
	MemoryLimit int

	// Concurrency is the number of workers on the main socket. Default 1.
	Concurrency int

	// LingerTime defaults to DefaultLingerTime.
	LingerTime time.Duration

	// UseUnixSockets selects a unix domain socket for the main endpoint.
	UseUnixSockets bool
	RuntimeDir     string

	// WorkerFactory defaults to worker.New.
	WorkerFactory worker.Factory

	// Router owns the process signal dispositions. Dispositions installed
	// on it before MainLoop are restored when MainLoop returns. Nil creates
	// a private router.
	Router *signals.Router

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  trace.Tracer

	// Version is reported by the liveness probe.
	Version string

	// StatusOutput receives the status report on SIGQUIT and SIGABRT.
	// Default os.Stderr.
	StatusOutput io.Writer
}

// RequestHandler owns the endpoints, the worker pool and the main loop of
// a backend process.
type RequestHandler struct {
	opts         Options
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *metrics.Collector
	dialer       upstream.Dialer
	poolPassword string

	ownerPipe *os.File
	ownerFD   int

	primary   *sockets.Endpoint
	secondary *sockets.Endpoint

	pool      *pool.Manager
	router    *signals.Router
	ownRouter bool
	checker   *health.Checker
	mux       *http.ServeMux

	loopMu     sync.Mutex
	loopCond   *sync.Cond
	generation uint64
	iterations uint64
	running    bool
	closed     bool
	graceful   *gracefulPipe
	thread     *loopThread

	linger    atomic.Int64
	softOnce  sync.Once
	softState atomic.Int32
	softDone  chan struct{}

	cleanupOnce sync.Once
}

var (
	_ worker.Core   = (*RequestHandler)(nil)
	_ status.Source = (*RequestHandler)(nil)
)

// New creates a request handler and provisions its endpoints. ownerPipe is
// the read end of a pipe whose write end is held by the parent process.
func New(ownerPipe *os.File, opts Options) (*RequestHandler, error) {
	if ownerPipe == nil {
		return nil, ErrNoOwnerPipe
	}
	if opts.AppGroupName == "" {
		return nil, ErrNoAppGroupName
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.LingerTime <= 0 {
		opts.LingerTime = DefaultLingerTime
	}
	if opts.WorkerFactory == nil {
		opts.WorkerFactory = worker.New
	}
	if opts.StatusOutput == nil {
		opts.StatusOutput = os.Stderr
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("dispatch")
	}
	collector := opts.Metrics
	if collector == nil {
		disabled := false
		collector = metrics.NewCollector(&config.MetricsConfig{Enabled: &disabled}, nil)
	}
	dialer := opts.PoolDialer
	if dialer == nil {
		dialer = upstream.HTTPDialer{Address: opts.PoolAdminAddress, Timeout: opts.PoolTimeout}
	}

	var password string
	if opts.PoolAccountPasswordBase64 != "" {
		p, err := upstream.DecodePassword(opts.PoolAccountPasswordBase64)
		if err != nil {
			return nil, err
		}
		password = p
	}

	h := &RequestHandler{
		opts:         opts,
		logger:       logger.With("component", "dispatch", "app_group", opts.AppGroupName),
		tracer:       tracer,
		metrics:      collector,
		dialer:       dialer,
		poolPassword: password,
		ownerPipe:    ownerPipe,
		ownerFD:      int(ownerPipe.Fd()),
		softDone:     make(chan struct{}),
	}
	h.loopCond = sync.NewCond(&h.loopMu)
	h.linger.Store(int64(opts.LingerTime))

	primary, secondary, err := sockets.Provision(sockets.Options{
		UseUnixSockets: opts.UseUnixSockets,
		RuntimeDir:     opts.RuntimeDir,
		Concurrency:    opts.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("provision endpoints: %w", err)
	}
	h.primary = primary
	h.secondary = secondary

	h.pool = pool.NewManager(logger, collector)
	h.router = opts.Router
	if h.router == nil {
		h.router = signals.NewRouter(logger)
		h.ownRouter = true
	}
	collector.SetIdleSource(h.idleWorkers)

	h.checker = health.New(time.Second)
	h.checker.RegisterCheck("main_loop", health.LoopRunning(h.MainLoopRunning))
	h.checker.RegisterCheck("workers", health.WorkersLive(h.pool.LiveCount, opts.Concurrency+1))
	h.checker.RegisterCheck("soft_shutdown", health.NotShuttingDown(h.shutdownPhase))

	h.mux = http.NewServeMux()
	health.Register(h.mux, h.checker, opts.Version)
	if collector.Enabled() {
		h.mux.Handle(collector.Path(), collector.Handler())
	}
	h.mux.Handle(status.Path, status.Handler(h))

	h.logger.Debug("request handler created",
		"main", primary.Address,
		"http", secondary.Address,
		"concurrency", opts.Concurrency,
	)
	return h, nil
}

// ServerSockets returns the endpoints keyed by name.
func (h *RequestHandler) ServerSockets() map[string]*sockets.Endpoint {
	return map[string]*sockets.Endpoint{
		h.primary.Name:   h.primary,
		h.secondary.Name: h.secondary,
	}
}

// Endpoints returns the main and the http endpoint, in that order.
func (h *RequestHandler) Endpoints() []*sockets.Endpoint {
	return []*sockets.Endpoint{h.primary, h.secondary}
}

// StatusHandler serves /health, /ready, /metrics and /status. It is what
// the worker on the http endpoint runs.
func (h *RequestHandler) StatusHandler() http.Handler {
	return h.mux
}

// Workers returns the live worker inventory.
func (h *RequestHandler) Workers() []pool.SlotInfo {
	return h.pool.Slots()
}

// LingerTime returns the current soft shutdown linger time.
func (h *RequestHandler) LingerTime() time.Duration {
	return time.Duration(h.linger.Load())
}

// SetLingerTime changes the linger time. A soft shutdown already lingering
// is not affected.
func (h *RequestHandler) SetLingerTime(d time.Duration) {
	if d <= 0 {
		d = DefaultLingerTime
	}
	h.linger.Store(int64(d))
}

// Snapshot returns the current status of the handler.
func (h *RequestHandler) Snapshot() status.Snapshot {
	h.loopMu.Lock()
	gen, iter, running := h.generation, h.iterations, h.running
	h.loopMu.Unlock()

	return status.Snapshot{
		Time:            time.Now(),
		AppGroupName:    h.opts.AppGroupName,
		Generation:      gen,
		Iterations:      iter,
		MainLoopRunning: running,
		SoftShutdown:    h.SoftShutdownState().String(),
		Endpoints:       []string{h.primary.String(), h.secondary.String()},
		Workers:         h.pool.Slots(),
	}
}

// Cleanup stops a main loop started by StartMainLoopThread, closes the
// endpoints, removing unix socket files, and closes the owner pipe.
// Errors are ignored. Calling it more than once has no further effect.
//
// A main loop started with MainLoop must have returned before Cleanup is
// called.
func (h *RequestHandler) Cleanup() {
	h.cleanupOnce.Do(func() {
		h.loopMu.Lock()
		t := h.thread
		h.closed = true
		if t != nil && h.graceful != nil {
			h.graceful.closeWriter()
		}
		h.loopMu.Unlock()

		if t != nil {
			<-t.done
		}

		h.primary.Close()
		h.secondary.Close()
		_ = h.ownerPipe.Close()
		if h.ownRouter {
			h.router.Stop()
		}
		h.logger.Debug("request handler cleaned up")
	})
}

func (h *RequestHandler) printStatusReport() {
	if err := status.Write(h.opts.StatusOutput, h.Snapshot(), true); err != nil {
		h.logger.Warn("failed to write status report", "error", err)
	}
}

func (h *RequestHandler) idleWorkers() int {
	n := 0
	for _, slot := range h.pool.Slots() {
		if slot.Idle {
			n++
		}
	}
	return n
}

func (h *RequestHandler) shared() worker.Shared {
	return worker.Shared{
		App:             h.opts.App,
		Status:          h.mux,
		AppGroupName:    h.opts.AppGroupName,
		ConnectPassword: h.opts.ConnectPassword,
		Analytics:       h.opts.Analytics,
		MemoryLimitMB:   h.opts.MemoryLimit,
		Logger:          h.opts.Logger,
		Tracer:          h.tracer,
		Observer:        h.metrics,
	}
}
