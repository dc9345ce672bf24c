package dto

import (
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/anomaly"
)

// AlertDTO represents an alert in API responses
type AlertDTO struct {
	ID              string          `json:"id"`
	MonitorID       string          `json:"monitor_id"`
	Title           string          `json:"title"`
	Summary         string          `json:"summary"`
	Priority        float64         `json:"priority"`
	Urgency         string          `json:"urgency"`
	Confidence      float64         `json:"confidence"`
	Changes         []alert.Change  `json:"changes_detected"`
	Anomalies       []anomaly.Score `json:"anomalies,omitempty"`
	DegradedReasons []string        `json:"degraded_reasons,omitempty"`
	Read            bool            `json:"read"`
	UserFeedback    string          `json:"user_feedback,omitempty"`
	FeedbackComment string          `json:"feedback_comment,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// FeedbackRequest represents a user's verdict on an alert
type FeedbackRequest struct {
	Feedback string `json:"feedback" validate:"required,oneof=useful not_useful incorrect"`
	Comment  string `json:"comment,omitempty" validate:"max=2000"`
}

// FromAlert converts an alert to its API form
func FromAlert(a *alert.Alert) AlertDTO {
	changes := a.Changes
	if changes == nil {
		changes = []alert.Change{}
	}
	return AlertDTO{
		ID:              a.ID,
		MonitorID:       a.MonitorID,
		Title:           a.Title,
		Summary:         a.Summary,
		Priority:        a.Priority,
		Urgency:         a.Urgency,
		Confidence:      a.Confidence,
		Changes:         changes,
		Anomalies:       a.Anomalies,
		DegradedReasons: a.DegradedReasons,
		Read:            a.Read,
		UserFeedback:    a.UserFeedback,
		FeedbackComment: a.FeedbackComment,
		CreatedAt:       a.CreatedAt,
	}
}

// FromAlerts converts a list of alerts
func FromAlerts(alerts []*alert.Alert) []AlertDTO {
	out := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		out[i] = FromAlert(a)
	}
	return out
}
