package store

import (
	"context"
	"errors"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// EntityFilter narrows entity listings. Zero values match everything.
type EntityFilter struct {
	Kind         opportunity.Kind
	Province     string
	FieldOfStudy string
	// OpenOn keeps only entities accepting applications on that day.
	OpenOn *time.Time
	Limit  int
}

// Matches applies the filter to one entity. Stores that cannot express a
// condition in their query language finish filtering with it.
func (f EntityFilter) Matches(e opportunity.Entity) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Province != "" && opportunity.Normalize(e.Province) != opportunity.Normalize(f.Province) {
		return false
	}
	if f.FieldOfStudy != "" && !containsFold(e.FieldsOfStudy, f.FieldOfStudy) {
		return false
	}
	if f.OpenOn != nil && !e.IsOpenOn(*f.OpenOn) {
		return false
	}
	return true
}

func containsFold(list []string, want string) bool {
	w := opportunity.Normalize(want)
	for _, item := range list {
		if opportunity.Normalize(item) == w {
			return true
		}
	}
	return false
}

// EntityRepository persists canonical entities. Implementations enforce a
// uniqueness constraint on (kind, name, scope) of the dedup key.
type EntityRepository interface {
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// GetByKey loads the entity for key or returns ErrNotFound.
	GetByKey(ctx context.Context, key opportunity.DedupKey) (opportunity.Entity, error)
	// ListByScope returns entities sharing kind and scope, oldest first.
	ListByScope(ctx context.Context, kind opportunity.Kind, scope string) ([]opportunity.Entity, error)
	// Insert adds e unless its key already exists. It reports whether a row was written.
	Insert(ctx context.Context, e opportunity.Entity) (bool, error)
	// Update overwrites the mutable fields of an existing entity.
	Update(ctx context.Context, e opportunity.Entity) error
	// List returns entities matching filter ordered by creation time.
	List(ctx context.Context, filter EntityFilter) ([]opportunity.Entity, error)
	// ListClosingBetween returns entities whose deadline falls in [from, to].
	ListClosingBetween(ctx context.Context, from, to time.Time) ([]opportunity.Entity, error)
	// ListCreatedSince returns entities created at or after since.
	ListCreatedSince(ctx context.Context, since time.Time) ([]opportunity.Entity, error)
	// Delete removes entities by id and returns how many rows went away.
	Delete(ctx context.Context, ids []string) (int, error)
}
