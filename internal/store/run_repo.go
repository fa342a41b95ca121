package store

import (
	"context"
	"encoding/json"
	"time"
)

// RunStatus mirrors the task_runs status column.
type RunStatus string

// Task run statuses persisted in task_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// TaskRun models one execution of a scheduled task.
type TaskRun struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     RunStatus       `json:"status"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RunRepository persists task run history.
type RunRepository interface {
	// StartRun inserts a running row.
	StartRun(ctx context.Context, run TaskRun) error
	// FinishRun marks the run finished with status, summary and error text.
	FinishRun(
		ctx context.Context,
		id string,
		finishedAt time.Time,
		status RunStatus,
		summary json.RawMessage,
		errMsg string,
	) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id string) (TaskRun, error)
	// ListRuns returns the newest runs, optionally for one task.
	ListRuns(ctx context.Context, taskID string, limit int) ([]TaskRun, error)
}
