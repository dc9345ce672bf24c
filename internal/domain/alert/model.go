package alert

import (
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/anomaly"
)

// Change is a single difference between consecutive snapshots
type Change struct {
	ChangeType    string   `json:"change_type"`
	Metric        string   `json:"metric,omitempty"`
	Field         string   `json:"field,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Confidence    float64  `json:"confidence"`
	Sources       []string `json:"sources,omitempty"`
	PreviousValue any      `json:"previous_value,omitempty"`
	CurrentValue  any      `json:"current_value,omitempty"`
	ChangePct     *float64 `json:"change_pct,omitempty"`
}

// Alert is the notifiable unit produced by the scorer
type Alert struct {
	ID              string          `json:"id"`
	MonitorID       string          `json:"monitor_id"`
	Title           string          `json:"title"`
	Summary         string          `json:"summary"`
	Confidence      float64         `json:"confidence"`
	Changes         []Change        `json:"changes_detected"`
	Anomalies       []anomaly.Score `json:"anomalies,omitempty"`
	DegradedReasons []string        `json:"degraded_reasons,omitempty"`
	Priority        float64         `json:"priority"`
	Urgency         string          `json:"urgency"`
	DedupHash       string          `json:"dedup_hash"`
	CreatedAt       time.Time       `json:"created_at"`
	Read            bool            `json:"read"`
	UserFeedback    string          `json:"user_feedback,omitempty"`
	FeedbackComment string          `json:"feedback_comment,omitempty"`
}

// Change types
const (
	ChangeMetricIncrease = "metric_increase"
	ChangeMetricDecrease = "metric_decrease"
	ChangeMetricAdded    = "metric_added"
	ChangeMetricRemoved  = "metric_removed"
	ChangeNarrative      = "narrative_changed"
)

// Urgency levels
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
)

// User feedback values
const (
	FeedbackUseful    = "useful"
	FeedbackNotUseful = "not_useful"
	FeedbackIncorrect = "incorrect"
)

// Suppression reasons
const (
	SuppressedNoSignal       = "no_signal"
	SuppressedBelowThreshold = "below_threshold"
	SuppressedDuplicate      = "duplicate"
	SuppressedDailyCap       = "daily_cap"
)

// UrgencyForPriority buckets a 0-10 priority
func UrgencyForPriority(priority float64) string {
	switch {
	case priority >= 9:
		return UrgencyCritical
	case priority >= 7:
		return UrgencyHigh
	case priority >= 4:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// IsValidFeedback reports whether the feedback value is accepted
func IsValidFeedback(feedback string) bool {
	switch feedback {
	case FeedbackUseful, FeedbackNotUseful, FeedbackIncorrect:
		return true
	default:
		return false
	}
}

// Filter contains alert filtering options
type Filter struct {
	Urgency    string
	UnreadOnly bool
	Since      *time.Time
}

// Decision is the scorer's verdict: an alert to send or the reason none was
type Decision struct {
	Alert      *Alert `json:"alert,omitempty"`
	Suppressed string `json:"suppressed,omitempty"`
}
