package client

import "time"

// Monitor is a tracked entity with its check schedule
type Monitor struct {
	ID                    string     `json:"id"`
	Entity                string     `json:"entity"`
	Category              string     `json:"category,omitempty"`
	Frequency             string     `json:"frequency"` // hourly, daily, weekly, monthly
	Frameworks            []string   `json:"frameworks"`
	AlertThreshold        float64    `json:"alert_threshold"`
	NotificationChannels  []string   `json:"notification_channels"`
	Status                string     `json:"status"` // active, paused, error
	LastCheck             *time.Time `json:"last_check,omitempty"`
	NextCheck             *time.Time `json:"next_check,omitempty"`
	ConsecutiveErrorCount int        `json:"consecutive_error_count"`
	LastError             string     `json:"last_error,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Change is one detected difference between consecutive snapshots
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

// AnomalyScore is the statistical verdict on one metric value
type AnomalyScore struct {
	MetricName    string  `json:"metric_name"`
	Status        string  `json:"status"`
	SkipReason    string  `json:"skip_reason,omitempty"`
	IsAnomaly     bool    `json:"is_anomaly"`
	AnomalyType   string  `json:"anomaly_type,omitempty"`
	Severity      float64 `json:"severity"`
	SeverityLevel string  `json:"severity_level,omitempty"`
	Confidence    float64 `json:"confidence"`
	ForecastValue float64 `json:"forecast_value"`
	LowerBound    float64 `json:"lower_bound"`
	UpperBound    float64 `json:"upper_bound"`
	ActualValue   float64 `json:"actual_value"`
}

// Alert is a notification raised by a check
type Alert struct {
	ID              string         `json:"id"`
	MonitorID       string         `json:"monitor_id"`
	Title           string         `json:"title"`
	Summary         string         `json:"summary"`
	Priority        float64        `json:"priority"`
	Urgency         string         `json:"urgency"` // critical, high, medium, low
	Confidence      float64        `json:"confidence"`
	Changes         []Change       `json:"changes_detected"`
	Anomalies       []AnomalyScore `json:"anomalies,omitempty"`
	DegradedReasons []string       `json:"degraded_reasons,omitempty"`
	Read            bool           `json:"read"`
	UserFeedback    string         `json:"user_feedback,omitempty"`
	FeedbackComment string         `json:"feedback_comment,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// CheckResult is the outcome of one check cycle
type CheckResult struct {
	MonitorID  string   `json:"monitor_id"`
	Status     string   `json:"status"` // ok, degraded, failed
	Reasons    []string `json:"reasons,omitempty"`
	Baseline   bool     `json:"baseline"`
	SnapshotID string   `json:"snapshot_id,omitempty"`
	Changes    int      `json:"changes"`
	Alert      *Alert   `json:"alert,omitempty"`
	Suppressed string   `json:"suppressed,omitempty"`
}

// CheckResponse is returned by an on-demand check
type CheckResponse struct {
	Result  *CheckResult `json:"result"`
	Monitor Monitor      `json:"monitor"`
}

// Snapshot is a decoded point-in-time analysis result
type Snapshot struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Payload          *Payload  `json:"payload"`
	Compressed       bool      `json:"compressed"`
	CompressionRatio float64   `json:"compression_ratio"`
	StoredSize       int       `json:"stored_size"`
}

// Payload is the structured content of a snapshot
type Payload struct {
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Narrative map[string]string  `json:"narrative,omitempty"`
	Sources   []string           `json:"sources,omitempty"`
}

// Aggregation is a rollup of a monitor's snapshots over one period
type Aggregation struct {
	MonitorID         string          `json:"monitor_id"`
	PeriodType        string          `json:"period_type"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	SnapshotCount     int             `json:"snapshot_count"`
	Metrics           []MetricSummary `json:"metrics"`
	SignificantChange bool            `json:"significant_change"`
}

// MetricSummary holds the statistics of one metric within a period
type MetricSummary struct {
	Name         string   `json:"name"`
	Count        int      `json:"count"`
	Min          float64  `json:"min"`
	Max          float64  `json:"max"`
	Mean         float64  `json:"mean"`
	StdDev       float64  `json:"stddev"`
	Trend        string   `json:"trend"`
	Slope        float64  `json:"slope"`
	MovingAvg7   float64  `json:"moving_avg_7"`
	MovingAvg30  float64  `json:"moving_avg_30"`
	PreviousMean *float64 `json:"previous_mean,omitempty"`
	ChangePct    *float64 `json:"change_pct,omitempty"`
}

// Page is one page of a paginated listing
type Page[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ListOptions contains common pagination options
type ListOptions struct {
	Page     int
	PageSize int
}

// HealthResponse represents the liveness response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness response
type ReadinessResponse struct {
	Status           string `json:"status"`
	Database         string `json:"database"`
	PendingSnapshots int    `json:"pending_snapshots"`
}
