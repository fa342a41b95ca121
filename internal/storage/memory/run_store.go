package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// RunStore implements store.RunRepository in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]store.TaskRun
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]store.TaskRun)}
}

// StartRun stores a running row.
func (s *RunStore) StartRun(_ context.Context, run store.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	if run.Status == "" {
		run.Status = store.RunRunning
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun marks a run finished.
func (s *RunStore) FinishRun(
	_ context.Context,
	id string,
	finishedAt time.Time,
	status store.RunStatus,
	summary json.RawMessage,
	errMsg string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.Summary = append(json.RawMessage(nil), summary...)
	run.Error = errMsg
	s.runs[id] = run
	return nil
}

// GetRun loads a run.
func (s *RunStore) GetRun(_ context.Context, id string) (store.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.TaskRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns the newest runs first.
func (s *RunStore) ListRuns(_ context.Context, taskID string, limit int) ([]store.TaskRun, error) {
	s.mu.RLock()
	out := make([]store.TaskRun, 0, len(s.runs))
	for _, run := range s.runs {
		if taskID == "" || run.TaskID == taskID {
			out = append(out, run)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
