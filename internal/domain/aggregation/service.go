package aggregation

import (
	"context"
	"time"
)

// Service computes and reads periodic rollups
type Service interface {
	// Aggregate recomputes and stores the rollup for the period containing periodStart
	Aggregate(ctx context.Context, monitorID, periodType string, periodStart time.Time) (*Aggregation, error)

	// Get reads a precomputed rollup
	Get(ctx context.Context, monitorID, periodType string, periodStart time.Time) (*Aggregation, error)

	// ListByMonitor returns recent rollups
	ListByMonitor(ctx context.Context, monitorID, periodType string, limit int) ([]*Aggregation, error)
}
