package monitor

import (
	"context"
	"time"
)

// Repository defines the interface for monitor data access
type Repository interface {
	// Create creates a new monitor
	Create(ctx context.Context, m *Monitor) error

	// GetByID retrieves a monitor by ID regardless of owner
	GetByID(ctx context.Context, id string) (*Monitor, error)

	// UpdateConfig persists the editable configuration, and next_check when
	// reschedule is set, only while the monitor is still in m.Status.
	// Returns a Conflict error when the status moved on.
	UpdateConfig(ctx context.Context, m *Monitor, reschedule bool) error

	// List retrieves monitors with filters
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Monitor, int64, error)

	// ListDue retrieves active monitors whose next check is at or before now
	ListDue(ctx context.Context, now time.Time) ([]*Monitor, error)

	// RecordSuccess stamps a successful check and resets the error count
	RecordSuccess(ctx context.Context, id string, checkedAt, nextCheck time.Time) error

	// RecordFailure increments the error count and returns the new count
	RecordFailure(ctx context.Context, id string, reason string, nextCheck time.Time) (int, error)

	// TransitionStatus moves a monitor from one status to another only if it
	// is still in the expected status. Returns false when nothing changed.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
}
