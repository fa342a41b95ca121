package scheduler

import (
	"context"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// TaskType groups tasks by what they do.
type TaskType string

// Task types.
const (
	TypeScraping     TaskType = "scraping"
	TypeNotification TaskType = "notification"
	TypeMaintenance  TaskType = "maintenance"
)

// State is where a task is in its run cycle.
type State string

// Task states. A task is queued from the moment a trigger is accepted until
// a worker picks it up.
const (
	StateIdle    State = "idle"
	StateQueued  State = "queued"
	StateRunning State = "running"
)

// TaskSpec is the configured part of a task.
type TaskSpec struct {
	ID       string        `mapstructure:"id" json:"id" validate:"required"`
	Cron     string        `mapstructure:"cron" json:"cron" validate:"required"`
	Type     TaskType      `mapstructure:"type" json:"type" validate:"required,oneof=scraping notification maintenance"`
	Category string        `mapstructure:"category" json:"category,omitempty"`
	Active   bool          `mapstructure:"active" json:"active"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Task is a point-in-time view of a registered task.
type Task struct {
	TaskSpec
	State      State           `json:"state"`
	LastRunID  string          `json:"last_run_id,omitempty"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
	LastStatus store.RunStatus `json:"last_status,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
}

// Runner executes the body of a task. The returned summary is stored with
// the run. Only task-wide failures should be returned as errors.
type Runner interface {
	Run(ctx context.Context, task Task) (any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, task Task) (any, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, task Task) (any, error) { return f(ctx, task) }

// Result describes a finished run.
type Result struct {
	RunID      string          `json:"run_id"`
	TaskID     string          `json:"task_id"`
	Status     store.RunStatus `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Summary    any             `json:"summary,omitempty"`
	Err        error           `json:"-"`
}
