package postgres

import (
	"context"
	"fmt"
	"time"
)

// Ledger implements store.NotificationLedger on the notifications table.
type Ledger struct {
	pool Pool
}

// NewLedger constructs a Ledger from an existing pool.
func NewLedger(pool Pool) *Ledger {
	return &Ledger{pool: pool}
}

// WasNotified reports whether entityID already has a row for scope.
func (l *Ledger) WasNotified(ctx context.Context, entityID, scope string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE entity_id = $1 AND scope = $2)`,
		entityID, scope,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification ledger: %w", err)
	}
	return exists, nil
}

// MarkNotified records entityID under scope. Repeated marks are no-ops.
func (l *Ledger) MarkNotified(ctx context.Context, entityID, scope string, at time.Time) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO notifications (entity_id, scope, notified_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, scope) DO NOTHING`,
		entityID, scope, at,
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}
