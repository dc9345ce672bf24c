package aggregation

import (
	"time"
)

// Aggregation is a derived rollup of a monitor's snapshots over one period
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

// Metric returns the summary for a metric name
func (a *Aggregation) Metric(name string) (MetricSummary, bool) {
	for _, m := range a.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricSummary{}, false
}

// Period types
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Periods lists every rollup period, shortest first
var Periods = []string{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Trend directions
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// IsValidPeriod reports whether the period type is supported
func IsValidPeriod(periodType string) bool {
	switch periodType {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	default:
		return false
	}
}

// PeriodStart truncates t to the start of its period in UTC
func PeriodStart(periodType string, t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch periodType {
	case PeriodWeekly:
		// Weeks start on Monday
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// PeriodEnd returns the exclusive end of the period starting at start
func PeriodEnd(periodType string, start time.Time) time.Time {
	switch periodType {
	case PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case PeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// PreviousPeriodStart returns the start of the period before start
func PreviousPeriodStart(periodType string, start time.Time) time.Time {
	switch periodType {
	case PeriodWeekly:
		return start.AddDate(0, 0, -7)
	case PeriodMonthly:
		return start.AddDate(0, -1, 0)
	default:
		return start.AddDate(0, 0, -1)
	}
}
