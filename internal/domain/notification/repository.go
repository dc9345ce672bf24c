package notification

import "context"

// Repository defines the notification log repository interface
type Repository interface {
	CreateLog(ctx context.Context, log *Log) error
	ListLogsByAlert(ctx context.Context, alertID string) ([]*Log, error)
}
