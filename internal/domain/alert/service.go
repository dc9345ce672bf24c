package alert

import "context"

// Service defines the user-facing alert operations
type Service interface {
	// ListByMonitor lists alerts of a monitor owned by the user
	ListByMonitor(ctx context.Context, userID, monitorID string, filter Filter, limit, offset int) ([]*Alert, int64, error)

	// Get retrieves an alert owned by the user
	Get(ctx context.Context, userID, id string) (*Alert, error)

	// MarkRead marks an alert as read
	MarkRead(ctx context.Context, userID, id string) error

	// SubmitFeedback records the user's verdict on an alert
	SubmitFeedback(ctx context.Context, userID, id, feedback, comment string) error
}
