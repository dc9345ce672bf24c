package anomaly

// Detector scores a new observation against a metric's own history
type Detector interface {
	// Score uses the trend model only
	Score(monitorID, metricName string, history []float64, newValue float64) Score

	// ScoreSeasonal adds a seasonal component of the given cycle length
	ScoreSeasonal(monitorID, metricName string, history []float64, newValue float64, seasonLength int) Score
}
