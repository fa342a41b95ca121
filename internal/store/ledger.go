package store

import (
	"context"
	"time"
)

// NotificationLedger remembers which entities were already announced per scope.
type NotificationLedger interface {
	// WasNotified reports whether entityID was announced under scope.
	WasNotified(ctx context.Context, entityID, scope string) (bool, error)
	// MarkNotified records entityID as announced under scope.
	MarkNotified(ctx context.Context, entityID, scope string, at time.Time) error
}
