package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler logs a status summary on a cron schedule.
type Scheduler struct {
	schedule string
	source   Source
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. An empty schedule makes Start a no-op.
func NewScheduler(schedule string, source Source, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: schedule,
		source:   source,
		cron:     cron.New(),
		logger:   logger.With("component", "status.scheduler"),
	}
}

// Start validates the schedule and begins logging. The scheduler stops by
// itself when ctx is cancelled.
//
// Common expressions:
//   - "*/5 * * * *"  every five minutes
//   - "@hourly"      once an hour
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Debug("status report schedule not configured")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, s.Report); err != nil {
		return fmt.Errorf("failed to schedule status report: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("status scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Report logs one summary line for the current snapshot.
func (s *Scheduler) Report() {
	snap := s.source.Snapshot()
	s.logger.Info("status",
		"generation", snap.Generation,
		"main_loop_running", snap.MainLoopRunning,
		"soft_shutdown", snap.SoftShutdown,
		"workers_live", len(snap.Workers),
		"workers_idle", snap.IdleWorkers(),
	)
}

// Stop stops the scheduler and waits for a running report to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("status scheduler stopped")
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next report time, or nil when nothing is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
