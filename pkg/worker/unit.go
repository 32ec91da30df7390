package worker

import (
	"bufio"
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/metrics"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/dispatch/pkg/sockets"
	"mercator-hq/dispatch/pkg/telemetry/logging"
	"mercator-hq/dispatch/pkg/telemetry/tracing"
)

// Header names used on the session protocol.
const (
	HeaderConnectPassword = "X-Connect-Password"
	HeaderRequestID       = "X-Request-ID"
)

const heapMetric = "/memory/classes/heap/objects:bytes"

// ErrNoListener is returned by Install when the worker has no listener.
var ErrNoListener = errors.New("worker has no listener")

// Unit is the reference Worker. It serves one connection at a time.
type Unit struct {
	core    Core
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	handler http.Handler

	idle atomic.Bool

	// guard is held while a response is written; interrupting the current
	// connection waits for it.
	guard sync.Mutex

	memoryOnce sync.Once
}

var _ Factory = New

// New is a Factory for the reference worker.
func New(core Core, opts Options) (Worker, error) {
	logger := opts.Shared.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Shared.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("dispatch/worker")
	}

	u := &Unit{
		core:   core,
		opts:   opts,
		logger: logger.With("component", "worker", "socket", opts.SocketName),
		tracer: tracer,
	}
	u.idle.Store(true)
	return u, nil
}

// Install selects the handler for the worker's protocol.
func (u *Unit) Install() error {
	if u.opts.Listener == nil {
		return ErrNoListener
	}

	switch u.opts.Protocol {
	case sockets.ProtocolSession:
		if u.opts.Shared.App == nil {
			return errors.New("no application handler configured")
		}
		u.handler = u.opts.Shared.App
	case sockets.ProtocolHTTP:
		if u.opts.Shared.Status == nil {
			return errors.New("no status handler configured")
		}
		u.handler = u.opts.Shared.Status
	default:
		return fmt.Errorf("unsupported protocol %q", u.opts.Protocol)
	}

	u.logger.Debug("worker installed", "protocol", u.opts.Protocol)
	return nil
}

// Idle reports whether the worker is between connections.
func (u *Unit) Idle() bool {
	return u.idle.Load()
}

// MainLoop accepts and serves connections until ctx is cancelled.
func (u *Unit) MainLoop(ctx context.Context) error {
	ln := u.opts.Listener
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", u.opts.SocketName, err)
		}
		u.serveConn(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (u *Unit) serveConn(ctx context.Context, conn net.Conn) {
	u.idle.Store(false)
	defer u.idle.Store(true)

	stop := context.AfterFunc(ctx, func() {
		u.guard.Lock()
		defer u.guard.Unlock()
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	br := bufio.NewReader(conn)
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				u.logger.Debug("failed to read request", "error", err)
			}
			return
		}
		req.RemoteAddr = conn.RemoteAddr().String()

		keepAlive, err := u.serveRequest(ctx, conn, req)
		if err != nil {
			u.logger.Debug("failed to write response", "error", err)
			return
		}
		u.checkMemory()
		if !keepAlive || ctx.Err() != nil {
			return
		}
	}
}

// serveRequest handles one request and writes the response inside the
// guarded section.
func (u *Unit) serveRequest(ctx context.Context, conn net.Conn, req *http.Request) (bool, error) {
	start := time.Now()
	protocol := string(u.opts.Protocol)

	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(HeaderRequestID, requestID)
	}

	ctx = tracing.Extract(ctx, req.Header)
	ctx, span := u.tracer.Start(ctx, "dispatch.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.URL.RequestURI()),
			attribute.String("dispatch.protocol", protocol),
			attribute.String("dispatch.app_group", u.opts.Shared.AppGroupName),
			attribute.String("dispatch.request_id", requestID),
		),
	)
	defer span.End()

	rw := newBufferedResponse()
	rw.Header().Set(HeaderRequestID, requestID)

	if u.authorized(req) {
		req.Header.Del(HeaderConnectPassword)
		u.invoke(rw, req.WithContext(logging.WithRequestID(ctx, requestID)))
	} else {
		http.Error(rw, "connect password mismatch", http.StatusForbidden)
	}

	_, _ = io.Copy(io.Discard, req.Body)
	_ = req.Body.Close()

	keepAlive := !req.Close
	resp := rw.response(req, keepAlive)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	u.guard.Lock()
	err := resp.Write(conn)
	u.guard.Unlock()

	duration := time.Since(start)
	if obs := u.opts.Shared.Observer; obs != nil {
		obs.RequestServed(protocol, resp.StatusCode, duration)
	}
	if a := u.opts.Shared.Analytics; a != nil {
		a.Info("request served",
			"request_id", requestID,
			"method", req.Method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return keepAlive, err
}

// invoke calls the handler, converting a panic into a 500 response.
func (u *Unit) invoke(rw *bufferedResponse, req *http.Request) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("application panicked", "panic", r, "path", req.URL.Path)
			rw.reset()
			http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}()
	u.handler.ServeHTTP(rw, req)
}

func (u *Unit) authorized(req *http.Request) bool {
	password := u.opts.Shared.ConnectPassword
	if password == "" || u.opts.Protocol != sockets.ProtocolSession {
		return true
	}
	given := req.Header.Get(HeaderConnectPassword)
	return subtle.ConstantTimeCompare([]byte(given), []byte(password)) == 1
}

// checkMemory requests a soft shutdown once heap usage passes the limit.
func (u *Unit) checkMemory() {
	limit := u.opts.Shared.MemoryLimitMB
	if limit <= 0 || u.core == nil {
		return
	}

	sample := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return
	}
	usedMB := sample[0].Value.Uint64() / (1024 * 1024)
	if usedMB <= uint64(limit) {
		return
	}

	u.memoryOnce.Do(func() {
		u.logger.Warn("memory limit exceeded, requesting soft shutdown",
			"used_mb", usedMB,
			"limit_mb", limit,
		)
		u.core.SoftShutdown()
	})
}

// bufferedResponse collects a handler's response so it can be written in
// one guarded step.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) reset() {
	id := b.header.Get(HeaderRequestID)
	b.header = make(http.Header)
	if id != "" {
		b.header.Set(HeaderRequestID, id)
	}
	b.status = 0
	b.body.Reset()
}

func (b *bufferedResponse) response(req *http.Request, keepAlive bool) *http.Response {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	b.header.Set("Content-Length", strconv.Itoa(b.body.Len()))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        b.header,
		Body:          io.NopCloser(bytes.NewReader(b.body.Bytes())),
		ContentLength: int64(b.body.Len()),
		Request:       req,
		Close:         !keepAlive,
	}
}
