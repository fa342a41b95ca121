// Package dedup matches extracted candidates against canonical entities.
package dedup

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
)

var genericTokens = map[string]struct{}{
	"university": {},
	"college":    {},
	"tvet":       {},
	"of":         {},
	"the":        {},
	"and":        {},
}

type scopeKey struct {
	kind  opportunity.Kind
	scope string
}

// Index holds known entities keyed for exact and scoped lookups.
// It is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	byKey   map[string]opportunity.Entity
	byScope map[scopeKey][]opportunity.Entity
}

// NewIndex builds an index over entities.
func NewIndex(entities ...opportunity.Entity) *Index {
	idx := &Index{
		byKey:   make(map[string]opportunity.Entity, len(entities)),
		byScope: make(map[scopeKey][]opportunity.Entity),
	}
	for _, e := range entities {
		idx.Add(e)
	}
	return idx
}

// Add inserts or replaces e.
func (i *Index) Add(e opportunity.Entity) {
	i.mu.Lock()
	defer i.mu.Unlock()
	k := e.Key.String()
	sk := scopeKey{kind: e.Key.Kind, scope: e.Key.Scope}
	if _, exists := i.byKey[k]; exists {
		list := i.byScope[sk]
		for n := range list {
			if list[n].Key == e.Key {
				list[n] = e
			}
		}
	} else {
		i.byScope[sk] = append(i.byScope[sk], e)
	}
	i.byKey[k] = e
}

// Len returns the number of indexed entities.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byKey)
}

func (i *Index) exact(key opportunity.DedupKey) (opportunity.Entity, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.byKey[key.String()]
	return e, ok
}

func (i *Index) scoped(kind opportunity.Kind, scope string) []opportunity.Entity {
	i.mu.RLock()
	defer i.mu.RUnlock()
	list := i.byScope[scopeKey{kind: kind, scope: scope}]
	out := make([]opportunity.Entity, len(list))
	copy(out, list)
	return out
}

// Engine decides whether a candidate already exists.
type Engine struct {
	logger  *zap.Logger
	aliases map[string]string
}

// New creates an Engine.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.Named("dedup"), aliases: map[string]string{}}
}

// WithAliases registers alternative names that resolve to the same core name,
// e.g. "uct" -> "university of cape town".
func (e *Engine) WithAliases(aliases map[string]string) *Engine {
	out := make(map[string]string, len(aliases))
	for alias, canonical := range aliases {
		out[Core(alias)] = Core(canonical)
	}
	return &Engine{logger: e.logger, aliases: out}
}

// IsDuplicate returns the entity c duplicates, if any.
func (e *Engine) IsDuplicate(c opportunity.Candidate, idx *Index) (opportunity.Entity, bool) {
	return e.Lookup(opportunity.KeyFor(c), idx)
}

// Lookup tries an exact key match first, then a fuzzy match restricted to the
// same kind and scope. Several fuzzy matches resolve to the oldest entity.
func (e *Engine) Lookup(key opportunity.DedupKey, idx *Index) (opportunity.Entity, bool) {
	if idx == nil {
		return opportunity.Entity{}, false
	}
	if found, ok := idx.exact(key); ok {
		return found, true
	}

	want := e.core(key.Name)
	if want == "" {
		return opportunity.Entity{}, false
	}
	var matches []opportunity.Entity
	for _, existing := range idx.scoped(key.Kind, key.Scope) {
		have := e.core(existing.Key.Name)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			matches = append(matches, existing)
		}
	}
	switch len(matches) {
	case 0:
		return opportunity.Entity{}, false
	case 1:
		return matches[0], true
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].CreatedAt.Equal(matches[b].CreatedAt) {
			return matches[a].ID < matches[b].ID
		}
		return matches[a].CreatedAt.Before(matches[b].CreatedAt)
	})
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	e.logger.Warn("duplicate needs review",
		zap.String("key", key.String()),
		zap.Error(&opportunity.DuplicateAmbiguity{Key: key, MatchedIDs: ids, ChosenID: matches[0].ID}),
	)
	return matches[0], true
}

func (e *Engine) core(name string) string {
	c := Core(name)
	if canonical, ok := e.aliases[c]; ok {
		return canonical
	}
	return c
}

// Core strips generic institution tokens from a name and collapses whitespace.
func Core(name string) string {
	words := strings.Fields(opportunity.Normalize(name))
	kept := words[:0]
	for _, w := range words {
		if _, generic := genericTokens[w]; generic {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
