package anomaly

// Score is the per-metric verdict for one observation
type Score struct {
	MetricName    string   `json:"metric_name"`
	Status        string   `json:"status"`
	SkipReason    string   `json:"skip_reason,omitempty"`
	IsAnomaly     bool     `json:"is_anomaly"`
	AnomalyType   string   `json:"anomaly_type,omitempty"`
	Severity      float64  `json:"severity"`
	SeverityLevel string   `json:"severity_level,omitempty"`
	Confidence    float64  `json:"confidence"`
	ForecastValue float64  `json:"forecast_value"`
	LowerBound    float64  `json:"lower_bound"`
	UpperBound    float64  `json:"upper_bound"`
	ActualValue   float64  `json:"actual_value"`
	Details       *Details `json:"statistical_details,omitempty"`
}

// Details carries the model statistics behind a verdict
type Details struct {
	HistoryLength      int      `json:"history_length"`
	ZScore             float64  `json:"z_score"`
	ResidualStdDev     float64  `json:"residual_stddev"`
	Slope              float64  `json:"slope"`
	RecentSlope        float64  `json:"recent_slope"`
	SeasonLength       int      `json:"season_length,omitempty"`
	SeasonalForecast   *float64 `json:"seasonal_forecast,omitempty"`
	SeasonalZScore     *float64 `json:"seasonal_z_score,omitempty"`
	HistoricalStdDev   float64  `json:"historical_stddev"`
	RollingStdDev      float64  `json:"rolling_stddev"`
	PriorRollingStdDev float64  `json:"prior_rolling_stddev"`
}

// Anomaly types
const (
	TypePoint           = "point"
	TypeContextual      = "contextual"
	TypeTrendReversal   = "trend_reversal"
	TypeVolatilitySpike = "volatility_spike"
)

// Severity levels
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Score status
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
)

// Skip reasons
const (
	SkipInsufficientHistory = "insufficient_history"
	SkipNonFinite           = "non_finite_values"
)

// SeverityLevel buckets a severity in [0,1]
func SeverityLevel(severity float64) string {
	switch {
	case severity >= 0.75:
		return SeverityCritical
	case severity >= 0.5:
		return SeverityHigh
	case severity >= 0.25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Skipped reports whether the model could not be fit
func (s Score) Skipped() bool {
	return s.Status == StatusSkipped
}
