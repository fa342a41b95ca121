package scraper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

// Strategy knows how to retrieve and read one family of source pages.
type Strategy interface {
	Fetch(ctx context.Context, pages *PageFetcher, src opportunity.SourceDescriptor) (Page, error)
	Extract(page Page, now time.Time) ([]opportunity.Candidate, []opportunity.ExtractionError)
}

// singlePage fetches the source's target URL. Strategies embed it.
type singlePage struct{}

func (singlePage) Fetch(ctx context.Context, pages *PageFetcher, src opportunity.SourceDescriptor) (Page, error) {
	return pages.Page(ctx, src)
}

// Registry maps strategy names to implementations.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Strategy
}

// NewRegistry returns a registry holding the built-in strategies. Category
// names double as the default strategy for that category.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Strategy)}
	r.Register(string(opportunity.CategoryInstitution), InstitutionStrategy{})
	r.Register("tvet", InstitutionStrategy{DefaultType: "tvet"})
	r.Register("university", InstitutionStrategy{DefaultType: "university"})
	r.Register(string(opportunity.CategoryBursary), BursaryStrategy{})
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = s
}

// Names lists registered strategies.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup picks src.Strategy, or the default for its category.
func (r *Registry) Lookup(src opportunity.SourceDescriptor) (Strategy, error) {
	name := src.Strategy
	if name == "" {
		name = string(src.Category)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}
