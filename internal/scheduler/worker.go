package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/metrics"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/queue/memory"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// Run starts the workers and blocks until ctx finishes. In-flight runs see
// ctx canceled and are recorded before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx)
		}()
	}
	s.logger.Info("scheduler started", zap.Int("workers", s.cfg.Workers), zap.Int("tasks", len(s.Tasks())))
	<-ctx.Done()
	wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		j, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, memory.ErrClosed) {
				s.logger.Error("queue dequeue failed", zap.Error(err))
			}
			return
		}
		s.execute(ctx, j)
	}
}

func (s *Scheduler) execute(ctx context.Context, j job) {
	s.mu.Lock()
	e := s.entries[j.taskID]
	started := s.clock.Now()
	e.task.State = StateRunning
	e.task.LastRunID = j.runID
	e.task.LastRunAt = &started
	task := e.task
	runner := e.runner
	s.mu.Unlock()

	logger := s.logger.With(zap.String("task_id", task.ID), zap.String("run_id", j.runID))
	logger.Info("task started")
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()

	// Recording must survive a canceled or timed out run.
	recordCtx := context.WithoutCancel(ctx)
	if s.runs != nil {
		if err := s.runs.StartRun(recordCtx, store.TaskRun{
			ID: j.runID, TaskID: task.ID, StartedAt: started, Status: store.RunRunning,
		}); err != nil {
			logger.Warn("record run start", zap.Error(err))
		}
	}

	summary, err := s.invoke(ctx, runner, task)

	finished := s.clock.Now()
	status := store.RunSucceeded
	errMsg := ""
	if err != nil {
		status = store.RunFailed
		errMsg = err.Error()
	}
	if s.runs != nil {
		raw, mErr := json.Marshal(summary)
		if mErr != nil || summary == nil {
			raw = nil
		}
		if err := s.runs.FinishRun(recordCtx, j.runID, finished, status, raw, errMsg); err != nil {
			logger.Warn("record run finish", zap.Error(err))
		}
	}
	metrics.ObserveTaskRun(task.ID, string(status), finished.Sub(started))

	s.mu.Lock()
	e.task.State = StateIdle
	e.task.LastStatus = status
	e.task.LastError = errMsg
	if e.task.Active {
		next := e.schedule.Next(finished.In(s.cfg.Location))
		e.task.NextRunAt = &next
	}
	e.guard = false
	s.mu.Unlock()

	if err != nil {
		logger.Error("task failed", zap.Duration("duration", finished.Sub(started)), zap.Error(err))
	} else {
		logger.Info("task succeeded", zap.Duration("duration", finished.Sub(started)))
	}
	if j.waiter != nil {
		j.waiter <- Result{
			RunID:      j.runID,
			TaskID:     task.ID,
			Status:     status,
			StartedAt:  started,
			FinishedAt: finished,
			Summary:    summary,
			Err:        err,
		}
	}
}

// invoke runs the task under its timeout and turns panics into errors.
func (s *Scheduler) invoke(ctx context.Context, runner Runner, task Task) (summary any, err error) {
	runCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &opportunity.TaskTimeoutError{TaskID: task.ID, Timeout: task.Timeout, Cause: err}
		}
	}()
	return runner.Run(runCtx, task)
}

// Stop closes the queue. Pending runs are still drained by Run.
func (s *Scheduler) Stop() {
	s.queue.Close()
}
