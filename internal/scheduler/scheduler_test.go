package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/scheduler"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRunner struct {
	calls atomic.Int32
	err   error
}

func (r *fakeRunner) RunScheduled(context.Context) (*model.RunSummary, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &model.RunSummary{RunID: "run-1", BudgetsProcessed: 3}, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	released int
}

func (l *fakeLocker) TryLock(context.Context) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
		return nil
	}, true, nil
}

type skipCounter struct{ n atomic.Int32 }

func (s *skipCounter) RecordLockSkip() { s.n.Add(1) }

func TestRunOnce_NoLocker(t *testing.T) {
	runner := &fakeRunner{}
	s := scheduler.New(runner, "@every 1h", testLogger())

	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestRunOnce_ReleasesLock(t *testing.T) {
	runner := &fakeRunner{}
	locker := &fakeLocker{}
	s := scheduler.New(runner, "@every 1h", testLogger()).WithLocker(locker)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), runner.calls.Load())
	assert.Equal(t, 2, locker.released)
	assert.False(t, locker.held)
}

func TestRunOnce_ReleasesLockOnRunError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("aggregate budgets: boom")}
	locker := &fakeLocker{}
	s := scheduler.New(runner, "@every 1h", testLogger()).WithLocker(locker)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, locker.released)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	runner := &fakeRunner{}
	locker := &fakeLocker{held: true}
	skips := &skipCounter{}
	s := scheduler.New(runner, "@every 1h", testLogger()).WithLocker(locker).WithSkipRecorder(skips)

	summary, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrLockHeld)
	assert.Nil(t, summary)
	assert.Zero(t, runner.calls.Load())
	assert.Equal(t, int32(1), skips.n.Load())
}

func TestRunOnce_LockBackendDownStillRuns(t *testing.T) {
	runner := &fakeRunner{}
	locker := &fakeLocker{err: errors.New("dial tcp: connection refused")}
	s := scheduler.New(runner, "@every 1h", testLogger()).WithLocker(locker)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := scheduler.New(&fakeRunner{}, "every hour", testLogger())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron schedule")
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.NextRun())
}

func TestStart_RunsAndStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	s := scheduler.New(runner, "@every 1s", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	require.NotNil(t, s.NextRun())

	assert.Error(t, s.Start(ctx), "second start")

	require.Eventually(t, func() bool { return runner.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !s.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	s := scheduler.New(&fakeRunner{}, "0 * * * *", testLogger())
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
