package aggregation

import (
	"context"
	"time"
)

// Repository defines the interface for aggregation persistence
type Repository interface {
	// Upsert inserts or replaces the rollup for its (monitor, period type, start) key
	Upsert(ctx context.Context, a *Aggregation) error

	// Get returns a stored rollup, or nil when it was never computed
	Get(ctx context.Context, monitorID, periodType string, periodStart time.Time) (*Aggregation, error)

	// ListByMonitor returns the most recent rollups of one period type
	ListByMonitor(ctx context.Context, monitorID, periodType string, limit int) ([]*Aggregation, error)
}
