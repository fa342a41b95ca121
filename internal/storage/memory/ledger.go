package memory

import (
	"context"
	"sync"
	"time"
)

// Ledger implements store.NotificationLedger in memory.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]time.Time)}
}

// WasNotified reports whether entityID was announced under scope.
func (l *Ledger) WasNotified(_ context.Context, entityID, scope string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[entityID+"|"+scope]
	return ok, nil
}

// MarkNotified records the announcement.
func (l *Ledger) MarkNotified(_ context.Context, entityID, scope string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entityID+"|"+scope] = at
	return nil
}
