package monitor

import "context"

// CreateInput is the user-supplied configuration for a new monitor
type CreateInput struct {
	Entity               string   `json:"entity" validate:"required,min=1,max=200"`
	Category             string   `json:"category" validate:"max=100"`
	Frequency            string   `json:"frequency" validate:"required,oneof=hourly daily weekly monthly"`
	Frameworks           []string `json:"frameworks" validate:"dive,required"`
	AlertThreshold       *float64 `json:"alert_threshold" validate:"omitempty,gte=0,lte=1"`
	NotificationChannels []string `json:"notification_channels" validate:"dive,required,channel"`
}

// Service defines the interface for monitor management
type Service interface {
	// Create validates and stores a new active monitor
	Create(ctx context.Context, userID string, input CreateInput) (*Monitor, error)

	// Get retrieves a monitor owned by the user
	Get(ctx context.Context, userID, id string) (*Monitor, error)

	// List retrieves the user's monitors
	List(ctx context.Context, userID string, filter Filter, limit, offset int) ([]*Monitor, int64, error)

	// UpdateConfig changes the editable configuration
	UpdateConfig(ctx context.Context, userID, id string, update Update) (*Monitor, error)

	// Pause stops scheduling an active monitor
	Pause(ctx context.Context, userID, id string) (*Monitor, error)

	// Resume reactivates a paused or errored monitor
	Resume(ctx context.Context, userID, id string) (*Monitor, error)

	// Delete soft-deletes a monitor
	Delete(ctx context.Context, userID, id string) error
}
