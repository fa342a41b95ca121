// Package synchronizer writes classified candidates into the canonical store.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/deadline"
	"github.com/BhekumusaEric/apply4me-sub001/internal/dedup"
	"github.com/BhekumusaEric/apply4me-sub001/internal/metrics"
	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// Synchronizer is the only writer of canonical entities.
type Synchronizer struct {
	repo   store.EntityRepository
	engine *dedup.Engine
	ids    opportunity.IDGenerator
	clock  opportunity.Clock
	logger *zap.Logger
}

// New constructs a Synchronizer.
func New(
	repo store.EntityRepository,
	engine *dedup.Engine,
	ids opportunity.IDGenerator,
	clock opportunity.Clock,
	logger *zap.Logger,
) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		repo:   repo,
		engine: engine,
		ids:    ids,
		clock:  clock,
		logger: logger.Named("synchronizer"),
	}
}

type scope struct {
	kind  opportunity.Kind
	scope string
}

type batch struct {
	idx    *dedup.Index
	loaded map[scope]bool
	result opportunity.SyncBatchResult
}

// Sync deduplicates and upserts batch. Record failures are collected in the
// result; the returned error is set only when the store is unreachable or ctx ends.
func (s *Synchronizer) Sync(ctx context.Context, items []opportunity.Classified) (opportunity.SyncBatchResult, error) {
	b := &batch{idx: dedup.NewIndex(), loaded: make(map[scope]bool)}
	if err := s.repo.Ping(ctx); err != nil {
		return b.result, fmt.Errorf("%w: %w", opportunity.ErrStoreUnavailable, err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return b.result, fmt.Errorf("sync interrupted: %w", err)
		}
		if !deadline.Eligible(item.Window) {
			b.result.Skipped++
			metrics.ObserveCandidate(string(item.Candidate.Kind()), "skipped")
			continue
		}
		outcome, err := s.syncOne(ctx, b, item)
		if err != nil {
			b.result.ErrorCount++
			b.result.Errors = append(b.result.Errors, err.Error())
			s.logger.Warn("sync record failed", zap.Error(err))
			outcome = "error"
		}
		metrics.ObserveCandidate(string(item.Candidate.Kind()), outcome)
	}

	s.logger.Info("sync batch complete",
		zap.Int("candidates", len(items)),
		zap.Int("new", len(b.result.NewEntities)),
		zap.Int("updated", b.result.UpdatedCount),
		zap.Int("skipped", b.result.Skipped),
		zap.Int("errors", b.result.ErrorCount),
	)
	return b.result, nil
}

func (s *Synchronizer) syncOne(ctx context.Context, b *batch, item opportunity.Classified) (string, error) {
	key := opportunity.KeyFor(item.Candidate)
	if key.Name == "" {
		return "", &opportunity.PersistenceError{Key: key, Op: "validate", Cause: errors.New("candidate has no name")}
	}
	if err := s.loadScope(ctx, b, key); err != nil {
		return "", &opportunity.PersistenceError{Key: key, Op: "load scope", Cause: err}
	}

	now := s.clock.Now()
	if existing, ok := s.engine.Lookup(key, b.idx); ok {
		return s.update(ctx, b, existing, item, now)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return "", &opportunity.PersistenceError{Key: key, Op: "generate id", Cause: err}
	}
	fresh := opportunity.NewEntity(id, item, now)
	inserted, err := s.repo.Insert(ctx, fresh)
	if err != nil {
		return "", &opportunity.PersistenceError{Key: key, Op: "insert", Cause: err}
	}
	if !inserted {
		// Another writer won the race for this key.
		existing, err := s.repo.GetByKey(ctx, key)
		if err != nil {
			return "", &opportunity.PersistenceError{Key: key, Op: "reload", Cause: err}
		}
		return s.update(ctx, b, existing, item, now)
	}
	b.idx.Add(fresh)
	b.result.NewEntities = append(b.result.NewEntities, fresh)
	return "new", nil
}

func (s *Synchronizer) update(
	ctx context.Context,
	b *batch,
	existing opportunity.Entity,
	item opportunity.Classified,
	now time.Time,
) (string, error) {
	patched, changed := Patch(existing, opportunity.NewEntity(existing.ID, item, now), now)
	if !changed {
		b.idx.Add(existing)
		return "unchanged", nil
	}
	if err := s.repo.Update(ctx, patched); err != nil {
		return "", &opportunity.PersistenceError{Key: existing.Key, Op: "update", Cause: err}
	}
	b.idx.Add(patched)
	b.result.UpdatedCount++
	return "updated", nil
}

func (s *Synchronizer) loadScope(ctx context.Context, b *batch, key opportunity.DedupKey) error {
	sc := scope{kind: key.Kind, scope: key.Scope}
	if b.loaded[sc] {
		return nil
	}
	entities, err := s.repo.ListByScope(ctx, key.Kind, key.Scope)
	if err != nil {
		return fmt.Errorf("list scope %s: %w", key.Scope, err)
	}
	for _, e := range entities {
		b.idx.Add(e)
	}
	b.loaded[sc] = true
	return nil
}
