// Package reconcile tracks the inconsistencies a partially failed slip upload
// can leave behind and sweeps them up later. Create never rolls back; an
// object without a record, or a status change that never reached the broker,
// is written here instead.
package reconcile

import (
	"context"
	"time"
)

// Orphan is an uploaded object whose record may never have been created.
type Orphan struct {
	StorageKey string
	RecordedAt time.Time
}

// PendingEvent is an encoded event that failed to publish.
type PendingEvent struct {
	ID         string    `json:"id"`
	RoutingKey string    `json:"routing_key"`
	Payload    []byte    `json:"payload"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Ledger stores reconciliation work.
type Ledger interface {
	RecordOrphan(ctx context.Context, storageKey string, at time.Time) error
	RecordPendingEvent(ctx context.Context, event PendingEvent) error
	// DueOrphans returns up to limit orphans recorded at or before before,
	// oldest first.
	DueOrphans(ctx context.Context, before time.Time, limit int) ([]Orphan, error)
	PendingEvents(ctx context.Context, limit int) ([]PendingEvent, error)
	ForgetOrphan(ctx context.Context, storageKey string) error
	ForgetPendingEvent(ctx context.Context, id string) error
}
