package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// EntityStore implements store.EntityRepository in memory. The key map plays
// the role of the unique index.
type EntityStore struct {
	mu    sync.RWMutex
	byID  map[string]opportunity.Entity
	byKey map[string]string
}

// NewEntityStore constructs an EntityStore.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		byID:  make(map[string]opportunity.Entity),
		byKey: make(map[string]string),
	}
}

// Ping always succeeds.
func (s *EntityStore) Ping(context.Context) error { return nil }

// GetByKey loads the entity for key.
func (s *EntityStore) GetByKey(_ context.Context, key opportunity.DedupKey) (opportunity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key.String()]
	if !ok {
		return opportunity.Entity{}, store.ErrNotFound
	}
	return s.byID[id], nil
}

// ListByScope returns entities of kind within scope, oldest first.
func (s *EntityStore) ListByScope(_ context.Context, kind opportunity.Kind, scope string) ([]opportunity.Entity, error) {
	return s.collect(func(e opportunity.Entity) bool {
		return e.Key.Kind == kind && e.Key.Scope == scope
	}), nil
}

// Insert stores e unless its key exists.
func (s *EntityStore) Insert(_ context.Context, e opportunity.Entity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := e.Key.String()
	if _, exists := s.byKey[k]; exists {
		return false, nil
	}
	s.byKey[k] = e.ID
	s.byID[e.ID] = e
	return true, nil
}

// InsertRaw stores e without the uniqueness check. It mimics rows that
// reached the table through another path, such as a manual insert.
func (s *EntityStore) InsertRaw(e opportunity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[e.ID] = e
	if _, exists := s.byKey[e.Key.String()]; !exists {
		s.byKey[e.Key.String()] = e.ID
	}
}

// Update replaces an existing entity.
func (s *EntityStore) Update(_ context.Context, e opportunity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[e.ID]; !ok {
		return store.ErrNotFound
	}
	s.byID[e.ID] = e
	return nil
}

// List returns entities matching filter.
func (s *EntityStore) List(_ context.Context, filter store.EntityFilter) ([]opportunity.Entity, error) {
	out := s.collect(filter.Matches)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListClosingBetween returns entities whose deadline falls in [from, to].
func (s *EntityStore) ListClosingBetween(_ context.Context, from, to time.Time) ([]opportunity.Entity, error) {
	return s.collect(func(e opportunity.Entity) bool {
		return e.ClosesAt != nil && !e.ClosesAt.Before(from) && !e.ClosesAt.After(to)
	}), nil
}

// ListCreatedSince returns entities created at or after since.
func (s *EntityStore) ListCreatedSince(_ context.Context, since time.Time) ([]opportunity.Entity, error) {
	return s.collect(func(e opportunity.Entity) bool {
		return !e.CreatedAt.Before(since)
	}), nil
}

// Delete removes entities by id.
func (s *EntityStore) Delete(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range ids {
		e, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byID, id)
		if s.byKey[e.Key.String()] == id {
			delete(s.byKey, e.Key.String())
			for otherID, other := range s.byID {
				if other.Key == e.Key {
					s.byKey[e.Key.String()] = otherID
					break
				}
			}
		}
		removed++
	}
	return removed, nil
}

// Len returns the number of stored rows.
func (s *EntityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *EntityStore) collect(keep func(opportunity.Entity) bool) []opportunity.Entity {
	s.mu.RLock()
	out := make([]opportunity.Entity, 0, len(s.byID))
	for _, e := range s.byID {
		if keep(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
