package alert

import (
	"context"
	"time"
)

// Repository defines the interface for alert data access
type Repository interface {
	// Create creates a new alert record
	Create(ctx context.Context, a *Alert) error

	// GetByID retrieves an alert by ID
	GetByID(ctx context.Context, id string) (*Alert, error)

	// ListByMonitor retrieves a monitor's alerts, newest first
	ListByMonitor(ctx context.Context, monitorID string, filter Filter, limit, offset int) ([]*Alert, int64, error)

	// ListSince returns alerts created after since, used for throttling
	ListSince(ctx context.Context, monitorID string, since time.Time) ([]*Alert, error)

	// MarkRead sets the read flag
	MarkRead(ctx context.Context, id string) error

	// SetFeedback stores the user's feedback
	SetFeedback(ctx context.Context, id, feedback, comment string) error
}
