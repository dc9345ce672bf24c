package snapshot

import (
	"context"
	"time"
)

// Repository defines the interface for snapshot persistence. Snapshots are
// exchanged in their encoded form; Payload is ignored on write and left nil
// on read.
type Repository interface {
	// InsertBatch persists snapshots in order within one transaction
	InsertBatch(ctx context.Context, snapshots []*Snapshot) error

	// Latest returns the newest snapshot, or nil when none exists
	Latest(ctx context.Context, monitorID string) (*Snapshot, error)

	// Range returns snapshots with start <= ts < end in ascending order
	Range(ctx context.Context, monitorID string, start, end time.Time, limit int) ([]*Snapshot, error)

	// Recent returns the last n snapshots before the given time, ascending
	Recent(ctx context.Context, monitorID string, before time.Time, n int) ([]*Snapshot, error)

	// CountExpired counts snapshots older than cutoff, excluding the newest one
	CountExpired(ctx context.Context, monitorID string, cutoff time.Time) (int, error)

	// ListExpired returns snapshots older than cutoff, excluding the newest one
	ListExpired(ctx context.Context, monitorID string, cutoff time.Time) ([]*Snapshot, error)

	// DeleteExpired deletes snapshots older than cutoff, excluding the newest one
	DeleteExpired(ctx context.Context, monitorID string, cutoff time.Time) (int, error)

	// MonitorIDs lists every monitor that has stored snapshots
	MonitorIDs(ctx context.Context) ([]string, error)
}
