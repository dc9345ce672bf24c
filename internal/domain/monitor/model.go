package monitor

import (
	"time"
)

// Monitor is a tracked entity together with its check configuration
type Monitor struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	Entity                string     `json:"entity"`
	Category              string     `json:"category,omitempty"`
	Frequency             string     `json:"frequency"`
	Frameworks            []string   `json:"frameworks,omitempty"`
	AlertThreshold        float64    `json:"alert_threshold"`
	NotificationChannels  []string   `json:"notification_channels,omitempty"`
	Status                string     `json:"status"`
	LastCheck             *time.Time `json:"last_check,omitempty"`
	NextCheck             *time.Time `json:"next_check,omitempty"`
	ConsecutiveErrorCount int        `json:"consecutive_error_count"`
	LastError             string     `json:"last_error,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Check frequencies
const (
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Monitor status
const (
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusError   = "error"
	StatusDeleted = "deleted"
)

// DefaultAlertThreshold is applied when a monitor is created without one
const DefaultAlertThreshold = 0.7

// Interval returns the time between two scheduled checks
func Interval(frequency string) time.Duration {
	switch frequency {
	case FrequencyHourly:
		return time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// SeasonLength returns the number of checks in one natural cycle
func SeasonLength(frequency string) int {
	switch frequency {
	case FrequencyHourly:
		return 24
	case FrequencyWeekly:
		return 4
	case FrequencyMonthly:
		return 12
	default:
		return 7
	}
}

// IsValidFrequency reports whether the frequency can be scheduled
func IsValidFrequency(frequency string) bool {
	switch frequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

// IsDue reports whether an active monitor should be checked at now
func (m *Monitor) IsDue(now time.Time) bool {
	if m.Status != StatusActive {
		return false
	}
	return m.NextCheck == nil || !m.NextCheck.After(now)
}

// Filter contains monitor filtering options
type Filter struct {
	UserID         string
	Status         string
	Entity         string
	IncludeDeleted bool
}

// Update carries the user-editable configuration fields
type Update struct {
	Category             *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Frequency            *string  `json:"frequency,omitempty" validate:"omitempty,oneof=hourly daily weekly monthly"`
	Frameworks           []string `json:"frameworks,omitempty" validate:"dive,required"`
	AlertThreshold       *float64 `json:"alert_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	NotificationChannels []string `json:"notification_channels,omitempty" validate:"omitempty,dive,required,channel"`
}
