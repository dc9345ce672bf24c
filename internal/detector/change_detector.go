package detector

import (
	"fmt"
	"math"
	"sort"

	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
)

// Confidence assigned to structural changes
const (
	presenceConfidence  = 0.5
	narrativeConfidence = 0.6
)

// ChangeDetector diffs consecutive snapshot payloads
type ChangeDetector struct {
	threshold  float64
	saturation float64
}

// NewChangeDetector creates a change detector. Metric moves smaller than
// threshold (as a fraction of the previous value) are ignored; confidence
// saturates at a move of saturation.
func NewChangeDetector(threshold, saturation float64) *ChangeDetector {
	if threshold <= 0 {
		threshold = 0.20
	}
	if saturation <= 0 {
		saturation = 0.5
	}
	return &ChangeDetector{threshold: threshold, saturation: saturation}
}

// Detect compares two payloads. Changes are ordered by metric name, then
// by narrative field.
func (d *ChangeDetector) Detect(previous, current *snapshot.Payload) []alert.Change {
	if previous == nil || current == nil {
		return nil
	}

	var changes []alert.Change
	sources := current.Sources

	for _, name := range unionKeys(previous.Metrics, current.Metrics) {
		prev, hadPrev := previous.Metrics[name]
		cur, hasCur := current.Metrics[name]

		switch {
		case hadPrev && hasCur:
			if c, ok := d.metricChange(name, prev, cur); ok {
				c.Sources = sources
				changes = append(changes, c)
			}
		case hasCur:
			changes = append(changes, alert.Change{
				ChangeType:   alert.ChangeMetricAdded,
				Metric:       name,
				Title:        fmt.Sprintf("New metric %s", name),
				Description:  fmt.Sprintf("%s is now reported at %s", name, formatValue(cur)),
				Confidence:   presenceConfidence,
				Sources:      sources,
				CurrentValue: cur,
			})
		default:
			changes = append(changes, alert.Change{
				ChangeType:    alert.ChangeMetricRemoved,
				Metric:        name,
				Title:         fmt.Sprintf("Metric %s no longer reported", name),
				Description:   fmt.Sprintf("%s was %s and is missing from the latest analysis", name, formatValue(prev)),
				Confidence:    presenceConfidence,
				Sources:       sources,
				PreviousValue: prev,
			})
		}
	}

	for _, field := range unionKeys(previous.Narrative, current.Narrative) {
		prev := previous.Narrative[field]
		cur := current.Narrative[field]
		if prev == cur {
			continue
		}
		changes = append(changes, alert.Change{
			ChangeType:    alert.ChangeNarrative,
			Field:         field,
			Title:         fmt.Sprintf("%s changed", field),
			Description:   narrativeDescription(field, prev, cur),
			Confidence:    narrativeConfidence,
			Sources:       sources,
			PreviousValue: prev,
			CurrentValue:  cur,
		})
	}

	return changes
}

func (d *ChangeDetector) metricChange(name string, prev, cur float64) (alert.Change, bool) {
	if prev == cur {
		return alert.Change{}, false
	}

	change := alert.Change{
		Metric:        name,
		PreviousValue: prev,
		CurrentValue:  cur,
	}

	direction := "increased"
	change.ChangeType = alert.ChangeMetricIncrease
	if cur < prev {
		direction = "decreased"
		change.ChangeType = alert.ChangeMetricDecrease
	}

	if prev == 0 {
		// No relative size: treated as a saturated move
		change.Confidence = 1.0
		change.Title = fmt.Sprintf("%s %s from zero", name, direction)
		change.Description = fmt.Sprintf("%s %s from 0 to %s", name, direction, formatValue(cur))
		return change, true
	}

	pct := (cur - prev) / math.Abs(prev)
	if math.Abs(pct) < d.threshold {
		return alert.Change{}, false
	}

	change.ChangePct = &pct
	change.Confidence = 0.6 + 0.4*math.Min(1, math.Abs(pct)/d.saturation)
	change.Title = fmt.Sprintf("%s %s %.1f%%", name, direction, math.Abs(pct)*100)
	change.Description = fmt.Sprintf("%s %s from %s to %s (%+.1f%%)",
		name, direction, formatValue(prev), formatValue(cur), pct*100)
	return change, true
}

func narrativeDescription(field, prev, cur string) string {
	switch {
	case prev == "":
		return fmt.Sprintf("%s was added: %s", field, truncate(cur, 200))
	case cur == "":
		return fmt.Sprintf("%s was removed", field)
	default:
		return fmt.Sprintf("%s now reads: %s", field, truncate(cur, 200))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// unionKeys returns the sorted union of two maps' keys
func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
