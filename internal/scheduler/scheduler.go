// Package scheduler runs alert processing on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/robfig/cron/v3"
)

// ErrLockHeld is returned by RunOnce when another instance holds the run lock.
var ErrLockHeld = errors.New("scheduled run lock held by another instance")

// Runner executes one scheduled alert run.
type Runner interface {
	RunScheduled(ctx context.Context) (*model.RunSummary, error)
}

// SkipRecorder counts runs skipped for a held lock.
type SkipRecorder interface {
	RecordLockSkip()
}

// Scheduler triggers Runner on a cron schedule. Runs never overlap within
// one process; a Locker extends that across processes.
type Scheduler struct {
	runner   Runner
	schedule string
	locker   Locker
	skips    SkipRecorder
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// New creates a scheduler running runner on a standard five-field cron
// schedule or a descriptor such as "@every 1h".
func New(runner Runner, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger.With("component", "scheduler"),
	}
}

// WithLocker guards every run with l.
func (s *Scheduler) WithLocker(l Locker) *Scheduler {
	s.locker = l
	return s
}

// WithSkipRecorder reports runs skipped for a held lock to r.
func (s *Scheduler) WithSkipRecorder(r SkipRecorder) *Scheduler {
	s.skips = r
	return s
}

// Start schedules runs until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runJob(ctx) }); err != nil {
		return fmt.Errorf("schedule alert runs: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "schedule", s.schedule, "locked", s.locker != nil)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runJob(ctx context.Context) {
	summary, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrLockHeld):
		s.logger.Info("scheduled run skipped, lock held elsewhere")
	case err != nil:
		s.logger.Error("scheduled run failed", "error", err)
	default:
		s.logger.Info("scheduled run completed",
			"run_id", summary.RunID,
			"budgets", summary.BudgetsProcessed,
			"alerts", summary.AlertsTriggered,
			"duration_ms", summary.ProcessingTimeMs,
		)
	}
}

// RunOnce performs one scheduled run under the lock, if any. A lock backend
// error does not block the run.
func (s *Scheduler) RunOnce(ctx context.Context) (*model.RunSummary, error) {
	if s.locker != nil {
		unlock, acquired, err := s.locker.TryLock(ctx)
		switch {
		case err != nil:
			s.logger.Warn("run lock unavailable, running unlocked", "error", err)
		case !acquired:
			if s.skips != nil {
				s.skips.RecordLockSkip()
			}
			return nil, ErrLockHeld
		default:
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := unlock(releaseCtx); err != nil {
					s.logger.Warn("release run lock", "error", err)
				}
			}()
		}
	}

	return s.runner.RunScheduled(ctx)
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run time, or nil when not scheduled.
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
