package dto

import (
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
)

// MonitorDTO represents a monitor in API responses
type MonitorDTO struct {
	ID                    string     `json:"id"`
	Entity                string     `json:"entity"`
	Category              string     `json:"category,omitempty"`
	Frequency             string     `json:"frequency"`
	Frameworks            []string   `json:"frameworks"`
	AlertThreshold        float64    `json:"alert_threshold"`
	NotificationChannels  []string   `json:"notification_channels"`
	Status                string     `json:"status"`
	LastCheck             *time.Time `json:"last_check,omitempty"`
	NextCheck             *time.Time `json:"next_check,omitempty"`
	ConsecutiveErrorCount int        `json:"consecutive_error_count"`
	LastError             string     `json:"last_error,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// CreateMonitorRequest represents a monitor creation request
type CreateMonitorRequest = monitor.CreateInput

// UpdateMonitorRequest represents a partial monitor configuration update.
// Omitted fields are left unchanged.
type UpdateMonitorRequest = monitor.Update

// FromMonitor converts a monitor to its API form
func FromMonitor(m *monitor.Monitor) MonitorDTO {
	return MonitorDTO{
		ID:                    m.ID,
		Entity:                m.Entity,
		Category:              m.Category,
		Frequency:             m.Frequency,
		Frameworks:            nonNil(m.Frameworks),
		AlertThreshold:        m.AlertThreshold,
		NotificationChannels:  nonNil(m.NotificationChannels),
		Status:                m.Status,
		LastCheck:             m.LastCheck,
		NextCheck:             m.NextCheck,
		ConsecutiveErrorCount: m.ConsecutiveErrorCount,
		LastError:             m.LastError,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// FromMonitors converts a list of monitors
func FromMonitors(monitors []*monitor.Monitor) []MonitorDTO {
	out := make([]MonitorDTO, len(monitors))
	for i, m := range monitors {
		out[i] = FromMonitor(m)
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
