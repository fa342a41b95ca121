package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	memstore "github.com/BhekumusaEric/apply4me-sub001/internal/storage/memory"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

var schedNow = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

func newScheduler(t *testing.T, runs store.RunRepository, cfg Config) *Scheduler {
	t.Helper()
	return New(runs, &seqIDs{}, fixedClock{now: schedNow}, cfg, zap.NewNop())
}

func start(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func spec(id string) TaskSpec {
	return TaskSpec{ID: id, Cron: "0 6 * * *", Type: TypeScraping, Active: true, Timeout: time.Second}
}

func ok(summary any) Runner {
	return RunnerFunc(func(context.Context, Task) (any, error) { return summary, nil })
}

func TestRegisterComputesNextRun(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, nil, Config{})
	require.NoError(t, s.Register(spec("institution-discovery"), ok(nil)))

	task, err := s.Task("institution-discovery")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, task.State)
	require.NotNil(t, task.NextRunAt)
	assert.Equal(t, time.Date(2025, 6, 16, 6, 0, 0, 0, time.UTC), *task.NextRunAt)

	inactive := spec("digest")
	inactive.Active = false
	require.NoError(t, s.Register(inactive, ok(nil)))
	task, err = s.Task("digest")
	require.NoError(t, err)
	assert.Nil(t, task.NextRunAt)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, nil, Config{})
	bad := spec("broken")
	bad.Cron = "every tuesday"
	require.Error(t, s.Register(bad, ok(nil)))
	require.Error(t, s.Register(spec("no-runner"), nil))
	require.NoError(t, s.Register(spec("dup"), ok(nil)))
	require.Error(t, s.Register(spec("dup"), ok(nil)))

	_, err := s.Task("missing")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestTriggerRejections(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, nil, Config{})
	inactive := spec("off")
	inactive.Active = false
	require.NoError(t, s.Register(inactive, ok(nil)))

	_, err := s.Trigger("nope")
	require.ErrorIs(t, err, ErrUnknownTask)
	_, err = s.Trigger("off")
	require.ErrorIs(t, err, ErrTaskInactive)
}

func TestTriggerIsSingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls int
	var mu sync.Mutex
	runner := RunnerFunc(func(ctx context.Context, _ Task) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		started <- struct{}{}
		<-release
		return nil, nil
	})

	s := newScheduler(t, nil, Config{Workers: 2})
	require.NoError(t, s.Register(spec("bursary-discovery"), runner))
	start(t, s)

	_, err := s.Trigger("bursary-discovery")
	require.NoError(t, err)
	<-started

	_, err = s.Trigger("bursary-discovery")
	require.ErrorIs(t, err, ErrTaskRunning)
	task, _ := s.Task("bursary-discovery")
	assert.Equal(t, StateRunning, task.State)

	close(release)
	require.Eventually(t, func() bool {
		task, _ := s.Task("bursary-discovery")
		return task.State == StateIdle
	}, time.Second, 5*time.Millisecond)

	_, err = s.Trigger("bursary-discovery")
	require.NoError(t, err)
	<-started
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)
}

func TestTriggerQueueFull(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, nil, Config{QueueDepth: 1})
	require.NoError(t, s.Register(spec("a"), ok(nil)))
	require.NoError(t, s.Register(spec("b"), ok(nil)))

	_, err := s.Trigger("a")
	require.NoError(t, err)
	_, err = s.Trigger("b")
	require.ErrorIs(t, err, ErrQueueFull)

	task, _ := s.Task("b")
	assert.Equal(t, StateIdle, task.State)
	task, _ = s.Task("a")
	assert.Equal(t, StateQueued, task.State)
}

func TestRunRecordsHistory(t *testing.T) {
	t.Parallel()

	runs := memstore.NewRunStore()
	s := newScheduler(t, runs, Config{})
	require.NoError(t, s.Register(spec("maintenance"), ok(map[string]int{"removed": 2})))
	start(t, s)

	res, err := s.TriggerAndWait(context.Background(), "maintenance")
	require.NoError(t, err)
	assert.Equal(t, store.RunSucceeded, res.Status)
	assert.NoError(t, res.Err)

	run, err := runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)
	var summary map[string]int
	require.NoError(t, json.Unmarshal(run.Summary, &summary))
	assert.Equal(t, 2, summary["removed"])

	task, _ := s.Task("maintenance")
	assert.Equal(t, store.RunSucceeded, task.LastStatus)
	assert.Equal(t, res.RunID, task.LastRunID)
	require.NotNil(t, task.LastRunAt)
}

func TestRunTimeoutFailsTask(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, memstore.NewRunStore(), Config{})
	slow := spec("reminders")
	slow.Timeout = 20 * time.Millisecond
	require.NoError(t, s.Register(slow, RunnerFunc(func(ctx context.Context, _ Task) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))
	start(t, s)

	res, err := s.TriggerAndWait(context.Background(), "reminders")
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, res.Status)
	var timeout *opportunity.TaskTimeoutError
	require.ErrorAs(t, res.Err, &timeout)
	assert.Equal(t, "reminders", timeout.TaskID)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	task, _ := s.Task("reminders")
	assert.Equal(t, StateIdle, task.State)
	assert.Contains(t, task.LastError, "timed out")
}

func TestRunRecoversPanicAndIsolatesTasks(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, nil, Config{Workers: 1})
	require.NoError(t, s.Register(spec("explodes"), RunnerFunc(func(context.Context, Task) (any, error) {
		panic("nil map")
	})))
	require.NoError(t, s.Register(spec("fails"), RunnerFunc(func(context.Context, Task) (any, error) {
		return nil, opportunity.ErrStoreUnavailable
	})))
	require.NoError(t, s.Register(spec("fine"), ok(nil)))
	start(t, s)

	ctx := context.Background()
	res, err := s.TriggerAndWait(ctx, "explodes")
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "panicked")

	res, err = s.TriggerAndWait(ctx, "fails")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, opportunity.ErrStoreUnavailable)

	res, err = s.TriggerAndWait(ctx, "fine")
	require.NoError(t, err)
	assert.Equal(t, store.RunSucceeded, res.Status)

	// The panicking task can run again.
	_, err = s.Trigger("explodes")
	require.NoError(t, err)
}

func TestTriggerAndWaitHonoursContext(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, nil, Config{})
	require.NoError(t, s.Register(spec("never-picked-up"), ok(nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.TriggerAndWait(ctx, "never-picked-up")
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClockSchedulesActiveTasks(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, nil, Config{})
	require.NoError(t, s.Register(spec("a"), ok(nil)))
	off := spec("b")
	off.Active = false
	require.NoError(t, s.Register(off, ok(nil)))

	clk, err := NewClock(s)
	require.NoError(t, err)
	assert.Len(t, clk.c.Entries(), 1)

	clk.fire("a")
	task, _ := s.Task("a")
	assert.Equal(t, StateQueued, task.State)
	clk.fire("a")
	clk.fire("b")
}
