// Package scheduler owns the named recurring tasks and runs them on a
// bounded worker pool, one run per task at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/queue/memory"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// Trigger rejections.
var (
	ErrUnknownTask  = errors.New("unknown task")
	ErrTaskInactive = errors.New("task inactive")
	ErrTaskRunning  = errors.New("task already running")
	ErrQueueFull    = errors.New("run queue full")
)

const (
	defaultWorkers    = 2
	defaultQueueDepth = 16
	defaultTimeout    = 15 * time.Minute
)

// Config sizes the worker pool.
type Config struct {
	Workers        int
	QueueDepth     int
	DefaultTimeout time.Duration
	Location       *time.Location
}

type entry struct {
	task     Task
	schedule cron.Schedule
	runner   Runner
	// guard is held from an accepted trigger until the run is recorded.
	guard bool
}

type job struct {
	runID  string
	taskID string
	waiter chan Result
}

// Scheduler is the task registry plus its worker pool.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	queue  *memory.Queue[job]
	runs   store.RunRepository
	ids    opportunity.IDGenerator
	clock  opportunity.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Scheduler. runs may be nil when run history is not kept.
func New(
	runs store.RunRepository,
	ids opportunity.IDGenerator,
	clock opportunity.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		queue:   memory.NewQueue[job](cfg.QueueDepth),
		runs:    runs,
		ids:     ids,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("scheduler"),
	}
}

// Register adds a task. Registering an existing id is an error.
func (s *Scheduler) Register(spec TaskSpec, runner Runner) error {
	if spec.ID == "" {
		return errors.New("register task: id is required")
	}
	if runner == nil {
		return fmt.Errorf("register task %s: runner is required", spec.ID)
	}
	sched, err := cron.ParseStandard(spec.Cron)
	if err != nil {
		return fmt.Errorf("register task %s: parse cron %q: %w", spec.ID, spec.Cron, err)
	}
	if spec.Timeout <= 0 {
		spec.Timeout = s.cfg.DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[spec.ID]; exists {
		return fmt.Errorf("register task %s: already registered", spec.ID)
	}
	e := &entry{task: Task{TaskSpec: spec, State: StateIdle}, schedule: sched, runner: runner}
	if spec.Active {
		next := sched.Next(s.clock.Now().In(s.cfg.Location))
		e.task.NextRunAt = &next
	}
	s.entries[spec.ID] = e
	s.order = append(s.order, spec.ID)
	return nil
}

// Tasks returns every task in registration order.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].task)
	}
	return out
}

// Task returns one task.
func (s *Scheduler) Task(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrUnknownTask)
	}
	return e.task, nil
}

// Trigger queues a run of taskID and returns its run id without waiting.
// A task that is already queued or running is rejected, not queued twice.
func (s *Scheduler) Trigger(taskID string) (string, error) {
	return s.trigger(taskID, nil)
}

// TriggerAndWait queues a run and blocks until it finishes or ctx ends.
func (s *Scheduler) TriggerAndWait(ctx context.Context, taskID string) (Result, error) {
	waiter := make(chan Result, 1)
	if _, err := s.trigger(taskID, waiter); err != nil {
		return Result{}, err
	}
	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("wait for %s: %w", taskID, ctx.Err())
	case res := <-waiter:
		return res, nil
	}
}

func (s *Scheduler) trigger(taskID string, waiter chan Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[taskID]
	switch {
	case !ok:
		return "", fmt.Errorf("trigger %s: %w", taskID, ErrUnknownTask)
	case !e.task.Active:
		return "", fmt.Errorf("trigger %s: %w", taskID, ErrTaskInactive)
	case e.guard:
		return "", fmt.Errorf("trigger %s: %w", taskID, ErrTaskRunning)
	}

	runID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("trigger %s: new run id: %w", taskID, err)
	}
	if err := s.queue.TryEnqueue(job{runID: runID, taskID: taskID, waiter: waiter}); err != nil {
		if errors.Is(err, memory.ErrFull) {
			return "", fmt.Errorf("trigger %s: %w", taskID, ErrQueueFull)
		}
		return "", fmt.Errorf("trigger %s: %w", taskID, err)
	}
	e.guard = true
	e.task.State = StateQueued
	s.logger.Debug("task queued", zap.String("task_id", taskID), zap.String("run_id", runID))
	return runID, nil
}
