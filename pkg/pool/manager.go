package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"mercator-hq/dispatch/pkg/sockets"
	"mercator-hq/dispatch/pkg/worker"
)

// PollInterval is the period used to poll for termination and idleness.
const PollInterval = 20 * time.Millisecond

// HTTPWorkerName is the name of the slot serving the secondary endpoint.
const HTTPWorkerName = "HTTP helper worker"

// Spec describes the workers Start launches.
type Spec struct {
	// Concurrency is the number of workers on the primary endpoint.
	Concurrency int

	Primary   *sockets.Endpoint
	Secondary *sockets.Endpoint

	Factory worker.Factory
	Core    worker.Core
	Shared  worker.Shared
}

// Recorder receives pool events. All methods must be safe for concurrent use.
type Recorder interface {
	WorkersLive(n int)
	WorkerInitFailed()
}

// Slot is a running worker goroutine.
type Slot struct {
	ID       int
	Name     string
	Endpoint string
	Started  time.Time

	worker worker.Worker
	cancel context.CancelFunc
}

// SlotInfo is a snapshot of a Slot.
type SlotInfo struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Endpoint string    `json:"endpoint"`
	Idle     bool      `json:"idle"`
	Started  time.Time `json:"started"`
}

// Manager owns the set of live worker slots.
type Manager struct {
	logger   *slog.Logger
	recorder Recorder

	mu       sync.Mutex
	cond     *sync.Cond
	live     map[int]*Slot
	outcomes map[int]error
	nextID   int
}

// NewManager creates a Manager. Both arguments may be nil.
func NewManager(logger *slog.Logger, recorder Recorder) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:   logger.With("component", "pool"),
		recorder: recorder,
		live:     make(map[int]*Slot),
		outcomes: make(map[int]error),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start launches spec.Concurrency workers on the primary endpoint and one on
// the secondary endpoint, then blocks until every one of them has reported
// its initialization outcome. It returns an *InitError if any failed.
//
// Workers are not stopped by cancelling ctx; use TerminateAll.
func (m *Manager) Start(ctx context.Context, spec Spec) error {
	if spec.Factory == nil {
		return fmt.Errorf("%w: no worker factory", ErrWorkerInit)
	}
	if spec.Primary == nil || spec.Secondary == nil {
		return fmt.Errorf("%w: endpoints not provisioned", ErrWorkerInit)
	}

	base := context.WithoutCancel(ctx)
	concurrency := spec.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	m.mu.Lock()
	m.outcomes = make(map[int]error, concurrency+1)
	ids := make([]int, 0, concurrency+1)
	names := make(map[int]string, concurrency+1)
	for i := 1; i <= concurrency+1; i++ {
		m.nextID++
		ids = append(ids, m.nextID)
		names[m.nextID] = fmt.Sprintf("Worker %d", i)
	}
	names[ids[concurrency]] = HTTPWorkerName
	m.mu.Unlock()

	for _, id := range ids[:concurrency] {
		m.spawn(base, id, names[id], spec.Primary, worker.MainSocketName, spec)
	}
	m.spawn(base, ids[concurrency], HTTPWorkerName, spec.Secondary, worker.HTTPSocketName, spec)

	m.mu.Lock()
	for len(m.outcomes) < len(ids) {
		m.cond.Wait()
	}
	var failures []SlotFailure
	for _, id := range ids {
		if err := m.outcomes[id]; err != nil {
			failures = append(failures, SlotFailure{ID: id, Name: names[id], Err: err})
		}
	}
	m.mu.Unlock()

	if len(failures) > 0 {
		return newInitError(failures)
	}

	m.logger.Debug("all workers initialized", "count", len(ids))
	return nil
}

func (m *Manager) spawn(ctx context.Context, id int, name string, ep *sockets.Endpoint, socketName string, spec Spec) {
	ctx, cancel := context.WithCancel(ctx)
	slot := &Slot{
		ID:       id,
		Name:     name,
		Endpoint: ep.Name,
		Started:  time.Now(),
		cancel:   cancel,
	}

	m.mu.Lock()
	m.live[id] = slot
	live := len(m.live)
	m.mu.Unlock()
	m.recordLive(live)

	go m.run(ctx, slot, ep, socketName, spec)
}

// run is the body of a slot goroutine.
func (m *Manager) run(ctx context.Context, slot *Slot, ep *sockets.Endpoint, socketName string, spec Spec) {
	logger := m.logger.With("worker", slot.Name)

	defer func() {
		var err error
		if r := recover(); r != nil {
			err = panicError{value: r}
			logger.Error("worker crashed", "error", err)
		}

		m.mu.Lock()
		if _, reported := m.outcomes[slot.ID]; !reported {
			if err == nil {
				err = errExited
			}
			m.outcomes[slot.ID] = err
			m.cond.Broadcast()
		}
		delete(m.live, slot.ID)
		live := len(m.live)
		m.mu.Unlock()

		slot.cancel()
		m.recordLive(live)
		logger.Debug("worker exited")
	}()

	w, err := m.install(slot, ep, socketName, spec)
	m.report(slot.ID, err)
	if err != nil {
		logger.Error("worker failed to initialize", "error", err)
		if m.recorder != nil {
			m.recorder.WorkerInitFailed()
		}
		return
	}

	if err := w.MainLoop(ctx); err != nil {
		logger.Error("worker main loop failed", "error", err)
	}
}

// install constructs the worker over a private listener.
func (m *Manager) install(slot *Slot, ep *sockets.Endpoint, socketName string, spec Spec) (w worker.Worker, err error) {
	var ln net.Listener
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
		if err != nil && ln != nil {
			_ = ln.Close()
		}
	}()

	ln, err = ep.Dup()
	if err != nil {
		return nil, err
	}

	w, err = spec.Factory(spec.Core, worker.Options{
		Listener:   ln,
		SocketName: socketName,
		Protocol:   ep.Protocol,
		Shared:     spec.Shared,
	})
	if err != nil {
		return nil, err
	}
	if err := w.Install(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	slot.worker = w
	m.mu.Unlock()
	return w, nil
}

func (m *Manager) report(id int, err error) {
	m.mu.Lock()
	m.outcomes[id] = err
	m.mu.Unlock()
	m.cond.Broadcast()
}

// TerminateAll interrupts every live worker and blocks until all slot
// goroutines have exited.
func (m *Manager) TerminateAll() {
	m.mu.Lock()
	for _, slot := range m.live {
		slot.cancel()
	}
	n := len(m.live)
	m.mu.Unlock()

	if n == 0 {
		return
	}
	m.logger.Debug("waiting for workers to terminate", "count", n)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for m.LiveCount() > 0 {
		<-ticker.C
	}
	m.logger.Debug("all workers terminated")
}

// WaitUntilIdle blocks until every live worker reports Idle, or ctx is done.
// Slots whose worker has not been constructed yet count as idle.
func (m *Manager) WaitUntilIdle(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for !m.allIdle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (m *Manager) allIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range m.live {
		if slot.worker != nil && !slot.worker.Idle() {
			return false
		}
	}
	return true
}

// LiveCount returns the number of live slots.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Slots returns a snapshot of the live slots ordered by ID.
func (m *Manager) Slots() []SlotInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SlotInfo, 0, len(m.live))
	for _, slot := range m.live {
		out = append(out, SlotInfo{
			ID:       slot.ID,
			Name:     slot.Name,
			Endpoint: slot.Endpoint,
			Idle:     slot.worker == nil || slot.worker.Idle(),
			Started:  slot.Started,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InitOutcomes returns a copy of the initialization outcomes of the most
// recent Start, keyed by slot ID. A nil value means success.
func (m *Manager) InitOutcomes() map[int]error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]error, len(m.outcomes))
	for id, err := range m.outcomes {
		out[id] = err
	}
	return out
}

func (m *Manager) recordLive(n int) {
	if m.recorder != nil {
		m.recorder.WorkersLive(n)
	}
}
