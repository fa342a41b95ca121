package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

const defaultRunLimit = 50

// RunStore implements store.RunRepository on the task_runs table.
type RunStore struct {
	pool Pool
}

// NewRunStore constructs a RunStore from an existing pool.
func NewRunStore(pool Pool) *RunStore {
	return &RunStore{pool: pool}
}

// StartRun inserts a running row.
func (s *RunStore) StartRun(ctx context.Context, run store.TaskRun) error {
	status := run.Status
	if status == "" {
		status = store.RunRunning
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_runs (id, task_id, started_at, status)
		VALUES ($1, $2, $3, $4)`,
		run.ID, run.TaskID, run.StartedAt, string(status),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun marks the run finished.
func (s *RunStore) FinishRun(
	ctx context.Context,
	id string,
	finishedAt time.Time,
	status store.RunStatus,
	summary json.RawMessage,
	errMsg string,
) error {
	var payload []byte
	if len(summary) > 0 {
		payload = summary
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_runs
		SET finished_at = $1, status = $2, summary = $3, error_message = $4
		WHERE id = $5`,
		finishedAt, string(status), payload, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, task_id, started_at, finished_at, status, summary, error_message`

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id string) (store.TaskRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM task_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.TaskRun{}, store.ErrNotFound
	}
	if err != nil {
		return store.TaskRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs, optionally filtered by task.
func (s *RunStore) ListRuns(ctx context.Context, taskID string, limit int) ([]store.TaskRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM task_runs
		WHERE ($1 = '' OR task_id = $1)
		ORDER BY started_at DESC
		LIMIT $2`,
		taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []store.TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs scan: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (store.TaskRun, error) {
	var (
		run     store.TaskRun
		status  string
		summary []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.TaskID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&summary,
		&run.Error,
	); err != nil {
		return store.TaskRun{}, err
	}
	run.Status = store.RunStatus(status)
	if len(summary) > 0 {
		run.Summary = json.RawMessage(summary)
	}
	return run, nil
}
