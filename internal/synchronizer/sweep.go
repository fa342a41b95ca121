package synchronizer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/metrics"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// SweepResult summarizes a maintenance sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Groups  int `json:"groups"`
	Removed int `json:"removed"`
}

// Sweep removes every entity that shares a dedup key with an older one.
// Keys are recomputed from the stored names so rows inserted by hand with
// different spelling still group together. Rows are scanned oldest first so
// the first row of each group survives.
func (s *Synchronizer) Sweep(ctx context.Context) (SweepResult, error) {
	if err := s.repo.Ping(ctx); err != nil {
		return SweepResult{}, fmt.Errorf("sweep: %w", err)
	}
	entities, err := s.repo.List(ctx, store.EntityFilter{})
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep list entities: %w", err)
	}

	seen := make(map[string]struct{}, len(entities))
	var doomed []string
	for _, e := range entities {
		k := e.DerivedKey().String()
		if _, dup := seen[k]; dup {
			doomed = append(doomed, e.ID)
			continue
		}
		seen[k] = struct{}{}
	}
	result := SweepResult{Scanned: len(entities), Groups: len(seen)}
	if len(doomed) == 0 {
		return result, nil
	}

	removed, err := s.repo.Delete(ctx, doomed)
	result.Removed = removed
	metrics.ObserveSweep(removed)
	if err != nil {
		return result, fmt.Errorf("sweep delete duplicates: %w", err)
	}
	s.logger.Info("sweep removed duplicates",
		zap.Int("scanned", result.Scanned),
		zap.Int("removed", removed),
	)
	return result, nil
}
