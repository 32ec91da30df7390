package signals

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrUntrappable is returned by Trap for signals that cannot be routed.
var ErrUntrappable = errors.New("signal cannot be trapped")

// ErrArmed is returned by Arm when the router is already armed.
var ErrArmed = errors.New("signal router already armed")

type kind int

const (
	kindDefault kind = iota
	kindIgnore
	kindHandler
)

// Disposition is what happens when a signal arrives.
type Disposition struct {
	kind    kind
	handler func(os.Signal)
}

var (
	// Default restores the runtime's default behavior for the signal.
	Default = Disposition{kind: kindDefault}

	// Ignore discards the signal.
	Ignore = Disposition{kind: kindIgnore}
)

// Handler returns a disposition that calls fn on the dispatcher goroutine.
func Handler(fn func(os.Signal)) Disposition {
	return Disposition{kind: kindHandler, handler: fn}
}

// IsDefault reports whether d is the default disposition.
func (d Disposition) IsDefault() bool { return d.kind == kindDefault }

// IsIgnore reports whether d ignores the signal.
func (d Disposition) IsIgnore() bool { return d.kind == kindIgnore }

// String returns "default", "ignore" or "handler".
func (d Disposition) String() string {
	switch d.kind {
	case kindIgnore:
		return "ignore"
	case kindHandler:
		return "handler"
	default:
		return "default"
	}
}

// untrappable lists signals the kernel or the Go runtime keeps to itself.
var untrappable = map[syscall.Signal]bool{
	unix.SIGKILL: true,
	unix.SIGSTOP: true,
	unix.SIGSEGV: true,
	unix.SIGBUS:  true,
	unix.SIGFPE:  true,
	unix.SIGILL:  true,
	unix.SIGTRAP: true,
	unix.SIGURG:  true,
	unix.SIGPROF: true,
}

// Trappable reports whether sig can be passed to Trap.
func Trappable(sig syscall.Signal) bool {
	return sig > 0 && !untrappable[sig] && unix.SignalName(sig) != ""
}

// trappableSignals returns every trappable signal in ascending order.
func trappableSignals() []syscall.Signal {
	var out []syscall.Signal
	for sig := syscall.Signal(1); sig < 65; sig++ {
		if Trappable(sig) {
			out = append(out, sig)
		}
	}
	return out
}

// Router owns the disposition table of the process.
type Router struct {
	logger *slog.Logger

	mu         sync.Mutex
	table      map[syscall.Signal]Disposition
	remembered map[syscall.Signal]Disposition
	touched    map[syscall.Signal]bool
	armed      bool

	ch       chan os.Signal
	stopCh   chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewRouter creates a Router. Signal delivery starts with the first Handler
// disposition.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:     logger.With("component", "signals"),
		table:      make(map[syscall.Signal]Disposition),
		remembered: make(map[syscall.Signal]Disposition),
		touched:    make(map[syscall.Signal]bool),
		ch:         make(chan os.Signal, 16),
		stopCh:     make(chan struct{}),
	}
}

// Trap installs d for sig and returns the previous disposition.
func (r *Router) Trap(sig syscall.Signal, d Disposition) (Disposition, error) {
	if !Trappable(sig) {
		return Disposition{}, fmt.Errorf("%w: %v", ErrUntrappable, sig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trapLocked(sig, d), nil
}

func (r *Router) trapLocked(sig syscall.Signal, d Disposition) Disposition {
	prev := r.currentLocked(sig)

	switch d.kind {
	case kindDefault:
		signal.Reset(sig)
	case kindIgnore:
		signal.Ignore(sig)
	case kindHandler:
		r.startLocked()
		signal.Notify(r.ch, sig)
	}
	r.table[sig] = d
	return prev
}

// Current returns the disposition currently installed for sig.
func (r *Router) Current(sig syscall.Signal) Disposition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked(sig)
}

func (r *Router) currentLocked(sig syscall.Signal) Disposition {
	if d, ok := r.table[sig]; ok {
		return d
	}
	if signal.Ignored(sig) {
		return Ignore
	}
	return Default
}

func (r *Router) startLocked() {
	if r.started {
		return
	}
	r.started = true
	go r.dispatch()
}

// dispatch delivers signals until Stop is called.
func (r *Router) dispatch() {
	for {
		select {
		case <-r.stopCh:
			return
		case sig := <-r.ch:
			r.deliver(sig)
		}
	}
}

// deliver runs the handler installed for sig, if any.
func (r *Router) deliver(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}

	r.mu.Lock()
	d := r.table[s]
	r.mu.Unlock()

	if d.kind != kindHandler || d.handler == nil {
		return
	}
	r.logger.Debug("signal received", "signal", unix.SignalName(s))
	d.handler(sig)
}

// Stop ends signal delivery and resets every signal the router handles.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		signal.Stop(r.ch)
		close(r.stopCh)
	})
}

// Hooks are the actions Arm binds to signals.
type Hooks struct {
	// SoftShutdown is run in its own goroutine on SIGUSR1.
	SoftShutdown func()

	// StatusReport is run synchronously on SIGABRT and SIGQUIT.
	StatusReport func()

	// Interrupt is run synchronously on SIGINT. Nil leaves SIGINT at its
	// default disposition.
	Interrupt func()
}

// Arm resets every trappable signal to its default disposition, remembering
// any non-default one, and then installs the handlers in h. SIGTERM keeps
// the default disposition.
func (r *Router) Arm(h Hooks) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.armed {
		return ErrArmed
	}
	r.armed = true

	for _, sig := range trappableSignals() {
		prev := r.trapLocked(sig, Default)
		r.touched[sig] = true
		if !prev.IsDefault() {
			r.remembered[sig] = prev
		}
	}

	r.trapLocked(unix.SIGHUP, Ignore)
	r.trapLocked(unix.SIGUSR1, Handler(func(os.Signal) {
		if h.SoftShutdown == nil {
			return
		}
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("soft shutdown handler panicked", "panic", rec)
				}
			}()
			h.SoftShutdown()
		}()
	}))

	status := Handler(func(sig os.Signal) {
		if h.StatusReport == nil {
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("status report failed", "panic", rec)
			}
		}()
		h.StatusReport()
	})
	r.trapLocked(unix.SIGABRT, status)
	r.trapLocked(unix.SIGQUIT, status)

	if h.Interrupt != nil {
		r.trapLocked(unix.SIGINT, Handler(func(os.Signal) {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("interrupt handler panicked", "panic", rec)
				}
			}()
			h.Interrupt()
		}))
	}

	r.logger.Debug("signal handlers installed", "remembered", len(r.remembered))
	return nil
}

// Disarm reinstalls the dispositions remembered by Arm. Signals that had the
// default disposition before Arm are reset to it. Disarm on an unarmed router
// is a no-op.
func (r *Router) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.armed {
		return
	}

	for sig := range r.touched {
		if d, ok := r.remembered[sig]; ok {
			r.trapLocked(sig, d)
		} else {
			r.trapLocked(sig, Default)
		}
	}
	r.remembered = make(map[syscall.Signal]Disposition)
	r.touched = make(map[syscall.Signal]bool)
	r.armed = false

	r.logger.Debug("signal handlers restored")
}

// Armed reports whether Arm is in effect.
func (r *Router) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

// Remembered returns the signals whose previous disposition Arm saved.
func (r *Router) Remembered() []syscall.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]syscall.Signal, 0, len(r.remembered))
	for sig := range r.remembered {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
