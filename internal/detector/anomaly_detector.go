package detector

import (
	"math"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/anomaly"
)

// AnomalyDetector scores a new observation against the metric's own history
// using a least-squares trend model, an optional seasonal component and a
// volatility comparison on first differences.
type AnomalyDetector struct {
	minHistory       int
	z                float64
	volatilityFactor float64
	volatilityWindow int
	trendWindow      int
}

// NewAnomalyDetector creates a new anomaly detector
func NewAnomalyDetector(cfg config.DetectorConfig) *AnomalyDetector {
	d := &AnomalyDetector{
		minHistory:       cfg.MinHistory,
		z:                cfg.ConfidenceZ,
		volatilityFactor: cfg.VolatilityFactor,
		volatilityWindow: cfg.VolatilityWindow,
		trendWindow:      cfg.TrendWindow,
	}
	if d.minHistory < 3 {
		d.minHistory = 8
	}
	if d.z <= 0 {
		d.z = 2.576
	}
	if d.volatilityFactor <= 1 {
		d.volatilityFactor = 2
	}
	if d.volatilityWindow < 2 {
		d.volatilityWindow = 5
	}
	if d.trendWindow < 2 {
		d.trendWindow = 6
	}
	return d
}

// Score uses the trend model only
func (d *AnomalyDetector) Score(monitorID, metricName string, history []float64, newValue float64) anomaly.Score {
	return d.score(metricName, history, newValue, 0)
}

// ScoreSeasonal adds a seasonal component of the given cycle length. The
// component is only fitted once two full cycles of history exist.
func (d *AnomalyDetector) ScoreSeasonal(monitorID, metricName string, history []float64, newValue float64, seasonLength int) anomaly.Score {
	return d.score(metricName, history, newValue, seasonLength)
}

// trendFit is the least-squares fit of a history
type trendFit struct {
	slope     float64
	intercept float64
	forecast  float64
	sigma     float64
	residuals []float64
}

func (d *AnomalyDetector) fitTrend(history []float64, floor float64) trendFit {
	n := len(history)
	slope, intercept := LinearFit(history)

	residuals := make([]float64, n)
	ss := 0.0
	for i, v := range history {
		residuals[i] = v - (intercept + slope*float64(i))
		ss += residuals[i] * residuals[i]
	}

	return trendFit{
		slope:     slope,
		intercept: intercept,
		forecast:  intercept + slope*float64(n),
		sigma:     math.Max(math.Sqrt(ss/float64(n-2)), floor),
		residuals: residuals,
	}
}

// seasonalFit returns the seasonal forecast and its residual stddev
func (d *AnomalyDetector) seasonalFit(fit trendFit, seasonLength int, floor float64) (float64, float64) {
	n := len(fit.residuals)
	sums := make([]float64, seasonLength)
	counts := make([]int, seasonLength)
	for i, r := range fit.residuals {
		sums[i%seasonLength] += r
		counts[i%seasonLength]++
	}
	index := make([]float64, seasonLength)
	for p := range index {
		if counts[p] > 0 {
			index[p] = sums[p] / float64(counts[p])
		}
	}

	ss := 0.0
	for i, r := range fit.residuals {
		e := r - index[i%seasonLength]
		ss += e * e
	}
	sigma := math.Max(math.Sqrt(ss/float64(n-2)), floor)

	return fit.forecast + index[n%seasonLength], sigma
}

func (d *AnomalyDetector) score(metricName string, history []float64, y float64, seasonLength int) anomaly.Score {
	n := len(history)
	result := anomaly.Score{
		MetricName:  metricName,
		Status:      anomaly.StatusOK,
		ActualValue: y,
	}

	if n < d.minHistory {
		result.Status = anomaly.StatusSkipped
		result.SkipReason = anomaly.SkipInsufficientHistory
		return result
	}
	if !AllFinite(history...) || !AllFinite(y) {
		result.Status = anomaly.StatusSkipped
		result.SkipReason = anomaly.SkipNonFinite
		return result
	}

	mean := Mean(history)
	floor := math.Max(0.01*math.Abs(mean), 1e-6)
	fit := d.fitTrend(history, floor)

	dist := math.Abs(y-fit.forecast) / fit.sigma
	outside := dist > d.z

	result.ForecastValue = fit.forecast
	result.LowerBound = fit.forecast - d.z*fit.sigma
	result.UpperBound = fit.forecast + d.z*fit.sigma

	details := &anomaly.Details{
		HistoryLength:  n,
		ZScore:         (y - fit.forecast) / fit.sigma,
		ResidualStdDev: fit.sigma,
		Slope:          fit.slope,
	}
	result.Details = details

	// Pivot is the second to last history point
	pivot := n - 2
	window := history[max(0, pivot-d.trendWindow+1) : pivot+1]
	recentSlope, _ := LinearFit(window)
	details.RecentSlope = recentSlope
	lastStep := history[n-1] - history[n-2]
	newStep := y - history[n-1]

	// Volatility on first differences
	diffs := Diffs(history)
	withNew := append(append([]float64{}, diffs...), newStep)
	older := diffs
	if len(diffs) > d.volatilityWindow+1 {
		older = diffs[:len(diffs)-d.volatilityWindow]
	}
	baseline := math.Max(StdDev(older), 1e-6)
	rolling := StdDev(Tail(withNew, d.volatilityWindow))
	prior := StdDev(Tail(diffs, d.volatilityWindow))
	details.HistoricalStdDev = baseline
	details.RollingStdDev = rolling
	details.PriorRollingStdDev = prior

	var seasonalOutside bool
	var seasonalDist float64
	if seasonLength >= 2 && n >= 2*seasonLength {
		forecast, sigma := d.seasonalFit(fit, seasonLength, floor)
		z := (y - forecast) / sigma
		seasonalDist = math.Abs(z)
		seasonalOutside = seasonalDist > d.z
		details.SeasonLength = seasonLength
		details.SeasonalForecast = &forecast
		details.SeasonalZScore = &z
	}

	lo, hi := MinMax(history)
	limit := d.volatilityFactor * baseline

	switch {
	case outside && reverses(recentSlope, lastStep, newStep):
		d.flag(&result, anomaly.TypeTrendReversal, dist, d.z, n)
	case outside && prior <= limit:
		d.flag(&result, anomaly.TypePoint, dist, d.z, n)
	case rolling > limit && prior > limit:
		d.flag(&result, anomaly.TypeVolatilitySpike, rolling/baseline, d.volatilityFactor, n)
	case !outside && y >= lo && y <= hi && seasonalOutside:
		d.flag(&result, anomaly.TypeContextual, seasonalDist, d.z, n)
	}

	return result
}

// flag marks the result anomalous; dist is measured in units where
// threshold is the detection boundary.
func (d *AnomalyDetector) flag(result *anomaly.Score, anomalyType string, dist, threshold float64, n int) {
	severity := 1 - math.Exp(-(dist-threshold)/threshold)
	if severity < 0 {
		severity = 0
	}

	coverage := math.Min(1, float64(n)/float64(3*d.minHistory))
	confidence := math.Min((1-math.Exp(-dist/threshold))*coverage, 0.99)

	result.IsAnomaly = true
	result.AnomalyType = anomalyType
	result.Severity = severity
	result.SeverityLevel = anomaly.SeverityLevel(severity)
	result.Confidence = confidence
}

// reverses reports whether both steps move against the recent slope
func reverses(slope, lastStep, newStep float64) bool {
	switch {
	case slope > 0:
		return lastStep < 0 && newStep < 0
	case slope < 0:
		return lastStep > 0 && newStep > 0
	default:
		return false
	}
}
