package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/anomaly"
)

func newTestDetector() *AnomalyDetector {
	return NewAnomalyDetector(config.Default().Detector)
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAnomalyDetector_PointSpike(t *testing.T) {
	d := newTestDetector()

	score := d.Score("m1", "revenue", flat(24, 100), 500)

	require.Equal(t, anomaly.StatusOK, score.Status)
	assert.True(t, score.IsAnomaly)
	assert.Equal(t, anomaly.TypePoint, score.AnomalyType)
	assert.Contains(t, []string{anomaly.SeverityHigh, anomaly.SeverityCritical}, score.SeverityLevel)
	assert.InDelta(t, 100, score.ForecastValue, 1e-9)
	assert.LessOrEqual(t, score.Confidence, 0.99)
	assert.Greater(t, score.Confidence, 0.9)
	assert.Equal(t, 24, score.Details.HistoryLength)
}

func TestAnomalyDetector_TrendReversal(t *testing.T) {
	d := newTestDetector()

	var history []float64
	for v := 10.0; v <= 48; v += 2 {
		history = append(history, v)
	}
	history = append(history, 40)

	score := d.Score("m1", "revenue", history, 30)

	assert.True(t, score.IsAnomaly)
	assert.Equal(t, anomaly.TypeTrendReversal, score.AnomalyType)
	assert.Greater(t, score.Details.RecentSlope, 0.0)
	assert.Less(t, score.ActualValue, score.LowerBound)
}

func TestAnomalyDetector_Contextual(t *testing.T) {
	d := newTestDetector()

	history := make([]float64, 16)
	for i := range history {
		history[i] = 10
		if i%2 == 1 {
			history[i] = 20
		}
	}

	t.Run("out of phase", func(t *testing.T) {
		// Index 16 is phase 0, where the series sits at 10
		score := d.ScoreSeasonal("m1", "visits", history, 20, 2)

		assert.True(t, score.IsAnomaly)
		assert.Equal(t, anomaly.TypeContextual, score.AnomalyType)
		assert.GreaterOrEqual(t, score.ActualValue, score.LowerBound)
		assert.LessOrEqual(t, score.ActualValue, score.UpperBound)
		require.NotNil(t, score.Details.SeasonalForecast)
		assert.InDelta(t, 11.06, *score.Details.SeasonalForecast, 0.05)
	})

	t.Run("in phase", func(t *testing.T) {
		score := d.ScoreSeasonal("m1", "visits", history, 10, 2)
		assert.False(t, score.IsAnomaly)
	})

	t.Run("without seasonal model", func(t *testing.T) {
		score := d.Score("m1", "visits", history, 20)
		assert.False(t, score.IsAnomaly)
		assert.Nil(t, score.Details.SeasonalForecast)
	})

	t.Run("season too long for history", func(t *testing.T) {
		score := d.ScoreSeasonal("m1", "visits", history, 20, 12)
		assert.False(t, score.IsAnomaly)
		assert.Zero(t, score.Details.SeasonLength)
	})
}

func TestAnomalyDetector_VolatilitySpike(t *testing.T) {
	d := newTestDetector()

	history := make([]float64, 0, 20)
	for i := 0; i < 15; i++ {
		history = append(history, 100+float64(i%2))
	}
	history = append(history, 115, 85, 118, 82, 120)

	score := d.Score("m1", "revenue", history, 80)

	assert.True(t, score.IsAnomaly)
	assert.Equal(t, anomaly.TypeVolatilitySpike, score.AnomalyType)
	assert.Greater(t, score.Details.PriorRollingStdDev, 2*score.Details.HistoricalStdDev)
	assert.Greater(t, score.Details.RollingStdDev, 2*score.Details.HistoricalStdDev)
}

func TestAnomalyDetector_Boundary(t *testing.T) {
	d := newTestDetector()
	history := flat(24, 100)
	z := config.Default().Detector.ConfidenceZ

	// sigma floors at 1% of the mean
	inside := d.Score("m1", "revenue", history, 100+0.99*z)
	assert.False(t, inside.IsAnomaly)
	assert.InDelta(t, 100+z, inside.UpperBound, 1e-9)
	assert.InDelta(t, 100-z, inside.LowerBound, 1e-9)

	outside := d.Score("m1", "revenue", history, 100+1.01*z)
	assert.True(t, outside.IsAnomaly)
	assert.Equal(t, anomaly.TypePoint, outside.AnomalyType)
	assert.Equal(t, anomaly.SeverityLow, outside.SeverityLevel)
}

func TestAnomalyDetector_Skipped(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		name       string
		history    []float64
		value      float64
		wantReason string
	}{
		{name: "empty history", history: nil, value: 1, wantReason: anomaly.SkipInsufficientHistory},
		{name: "seven points", history: flat(7, 1), value: 1, wantReason: anomaly.SkipInsufficientHistory},
		{name: "NaN in history", history: append(flat(10, 1), math.NaN()), value: 1, wantReason: anomaly.SkipNonFinite},
		{name: "infinite value", history: flat(10, 1), value: math.Inf(1), wantReason: anomaly.SkipNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := d.Score("m1", "revenue", tt.history, tt.value)
			assert.True(t, score.Skipped())
			assert.Equal(t, tt.wantReason, score.SkipReason)
			assert.False(t, score.IsAnomaly)
		})
	}
}

func TestAnomalyDetector_ConfidenceScalesWithHistory(t *testing.T) {
	d := newTestDetector()

	short := d.Score("m1", "revenue", flat(8, 100), 200)
	long := d.Score("m1", "revenue", flat(24, 100), 200)

	require.True(t, short.IsAnomaly)
	require.True(t, long.IsAnomaly)
	assert.Less(t, short.Confidence, long.Confidence)
	assert.InDelta(t, 8.0/24.0, short.Confidence, 0.01)
}

func TestSeverityLevel(t *testing.T) {
	tests := []struct {
		severity float64
		want     string
	}{
		{0, anomaly.SeverityLow},
		{0.24, anomaly.SeverityLow},
		{0.25, anomaly.SeverityMedium},
		{0.5, anomaly.SeverityHigh},
		{0.75, anomaly.SeverityCritical},
		{1, anomaly.SeverityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, anomaly.SeverityLevel(tt.severity), "severity %v", tt.severity)
	}
}
