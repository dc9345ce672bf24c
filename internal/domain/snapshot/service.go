package snapshot

import (
	"context"
	"time"
)

// Store is the batched, cached snapshot persistence layer
type Store interface {
	// Store queues a snapshot for persistence
	Store(ctx context.Context, s *Snapshot) (Ack, error)

	// Latest returns the newest snapshot including pending writes
	Latest(ctx context.Context, monitorID string) (*Snapshot, error)

	// Range returns decoded snapshots with start <= ts < end in ascending order
	Range(ctx context.Context, monitorID string, start, end time.Time, limit int) ([]*Snapshot, error)

	// Recent returns the last n decoded snapshots before the given time
	Recent(ctx context.Context, monitorID string, before time.Time, n int) ([]*Snapshot, error)

	// Cleanup removes snapshots older than the retention period
	Cleanup(ctx context.Context, monitorID string, retentionDays int, dryRun bool) (int, error)

	// Flush persists all pending writes
	Flush(ctx context.Context) error

	// Discard withdraws a write that is still pending. Returns false when
	// the snapshot was already persisted or is unknown.
	Discard(snapshotID string) bool
}

// Archiver copies snapshots somewhere durable before they are deleted
type Archiver interface {
	Archive(ctx context.Context, monitorID string, snapshots []*Snapshot) error
}
