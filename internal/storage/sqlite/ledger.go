package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Ledger implements store.NotificationLedger on SQLite.
type Ledger struct {
	db *sql.DB
}

// Ledger returns the notification ledger backed by d.
func (d *DB) Ledger() *Ledger { return &Ledger{db: d.db} }

// WasNotified reports whether entityID already has a row for scope.
func (l *Ledger) WasNotified(ctx context.Context, entityID, scope string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE entity_id = ? AND scope = ?)`,
		entityID, scope,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification ledger: %w", err)
	}
	return exists, nil
}

// MarkNotified records entityID under scope.
func (l *Ledger) MarkNotified(ctx context.Context, entityID, scope string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO notifications (entity_id, scope, notified_at) VALUES (?,?,?)
		ON CONFLICT (entity_id, scope) DO NOTHING`,
		entityID, scope, millis(at),
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}
