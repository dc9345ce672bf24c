package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
)

func TestChangeDetector_Metrics(t *testing.T) {
	d := NewChangeDetector(0.20, 0.5)

	tests := []struct {
		name           string
		prev, cur      float64
		wantType       string
		wantConfidence float64
	}{
		{name: "30% increase", prev: 100, cur: 130, wantType: alert.ChangeMetricIncrease, wantConfidence: 0.84},
		{name: "exactly at threshold", prev: 100, cur: 120, wantType: alert.ChangeMetricIncrease, wantConfidence: 0.76},
		{name: "halved", prev: 100, cur: 50, wantType: alert.ChangeMetricDecrease, wantConfidence: 1.0},
		{name: "tripled saturates", prev: 10, cur: 30, wantType: alert.ChangeMetricIncrease, wantConfidence: 1.0},
		{name: "negative base", prev: -100, cur: -150, wantType: alert.ChangeMetricDecrease, wantConfidence: 0.6 + 0.4*(0.5/0.5)},
		{name: "from zero", prev: 0, cur: 5, wantType: alert.ChangeMetricIncrease, wantConfidence: 1.0},
		{name: "below threshold", prev: 100, cur: 119, wantType: ""},
		{name: "unchanged", prev: 100, cur: 100, wantType: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := d.Detect(
				&snapshot.Payload{Metrics: map[string]float64{"revenue": tt.prev}},
				&snapshot.Payload{Metrics: map[string]float64{"revenue": tt.cur}, Sources: []string{"10-K"}},
			)

			if tt.wantType == "" {
				assert.Empty(t, changes)
				return
			}
			require.Len(t, changes, 1)
			assert.Equal(t, tt.wantType, changes[0].ChangeType)
			assert.Equal(t, "revenue", changes[0].Metric)
			assert.InDelta(t, tt.wantConfidence, changes[0].Confidence, 1e-9)
			assert.Equal(t, []string{"10-K"}, changes[0].Sources)
		})
	}
}

func TestChangeDetector_Structure(t *testing.T) {
	d := NewChangeDetector(0.20, 0.5)

	prev := &snapshot.Payload{
		Metrics:   map[string]float64{"revenue": 100, "headcount": 40},
		Narrative: map[string]string{"ceo": "A. Smith", "summary": "steady"},
	}
	cur := &snapshot.Payload{
		Metrics:   map[string]float64{"revenue": 105, "arr": 12},
		Narrative: map[string]string{"ceo": "B. Jones", "summary": "steady", "risk": "new lawsuit"},
	}

	changes := d.Detect(prev, cur)
	require.Len(t, changes, 4)

	assert.Equal(t, alert.ChangeMetricAdded, changes[0].ChangeType)
	assert.Equal(t, "arr", changes[0].Metric)
	assert.Equal(t, 0.5, changes[0].Confidence)

	assert.Equal(t, alert.ChangeMetricRemoved, changes[1].ChangeType)
	assert.Equal(t, "headcount", changes[1].Metric)

	assert.Equal(t, alert.ChangeNarrative, changes[2].ChangeType)
	assert.Equal(t, "ceo", changes[2].Field)
	assert.Equal(t, 0.6, changes[2].Confidence)

	assert.Equal(t, alert.ChangeNarrative, changes[3].ChangeType)
	assert.Equal(t, "risk", changes[3].Field)
}

func TestChangeDetector_NilPayload(t *testing.T) {
	d := NewChangeDetector(0.20, 0.5)
	assert.Nil(t, d.Detect(nil, &snapshot.Payload{}))
}
