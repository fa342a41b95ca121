package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// RunStore implements store.RunRepository on SQLite.
type RunStore struct {
	db *sql.DB
}

// Runs returns the task run store backed by d.
func (d *DB) Runs() *RunStore { return &RunStore{db: d.db} }

// StartRun inserts a running row.
func (s *RunStore) StartRun(ctx context.Context, run store.TaskRun) error {
	status := run.Status
	if status == "" {
		status = store.RunRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, task_id, started_at, status) VALUES (?,?,?,?)`,
		run.ID, run.TaskID, millis(run.StartedAt), string(status),
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
	var payload sql.NullString
	if len(summary) > 0 {
		payload = sql.NullString{String: string(summary), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_runs SET finished_at = ?, status = ?, summary = ?, error_message = ? WHERE id = ?`,
		millis(finishedAt), string(status), payload, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, task_id, started_at, finished_at, status, summary, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id string) (store.TaskRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM task_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM task_runs
		WHERE (? = '' OR task_id = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ?`,
		taskID, taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func scanRun(row rowScanner) (store.TaskRun, error) {
	var (
		run      store.TaskRun
		started  int64
		finished sql.NullInt64
		status   string
		summary  sql.NullString
	)
	if err := row.Scan(&run.ID, &run.TaskID, &started, &finished, &status, &summary, &run.Error); err != nil {
		return store.TaskRun{}, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	run.Status = store.RunStatus(status)
	if summary.Valid && summary.String != "" {
		run.Summary = json.RawMessage(summary.String)
	}
	return run, nil
}
