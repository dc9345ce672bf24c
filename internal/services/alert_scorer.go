package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/anomaly"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
)

// Factor weights in the priority formula
const (
	urgencyWeight   = 0.40
	magnitudeWeight = 0.35
	anomalyWeight   = 0.25
)

// Per-signal urgency
const (
	urgencyKeyMetric   = 1.0
	urgencyMetric      = 0.6
	urgencyNarrative   = 0.5
	urgencyPresence    = 0.3
	urgencyAnomalyOnly = 0.7
)

// AlertScorer turns a check's changes and anomaly scores into at most one
// alert, applying the monitor's confidence threshold, deduplication,
// throttling and the daily cap.
type AlertScorer struct {
	cfg        config.ScorerConfig
	keyMetrics map[string]bool
}

// NewAlertScorer creates a new alert scorer
func NewAlertScorer(cfg config.ScorerConfig) *AlertScorer {
	keys := make(map[string]bool, len(cfg.KeyMetrics))
	for _, k := range cfg.KeyMetrics {
		keys[strings.ToLower(strings.TrimSpace(k))] = true
	}
	if cfg.MagnitudeSaturation <= 0 {
		cfg.MagnitudeSaturation = 0.5
	}
	if cfg.DegradedPenalty <= 0 || cfg.DegradedPenalty > 1 {
		cfg.DegradedPenalty = 0.85
	}
	return &AlertScorer{cfg: cfg, keyMetrics: keys}
}

// Score decides whether the signals of one check produce an alert. recent
// holds the monitor's alerts from at least the last 24 hours.
func (s *AlertScorer) Score(mon *monitor.Monitor, changes []alert.Change, anomalies []anomaly.Score, recent []*alert.Alert, now time.Time) alert.Decision {
	threshold := mon.AlertThreshold
	if threshold <= 0 {
		threshold = s.cfg.DefaultAlertThreshold
	}

	var (
		signals       int
		scored        bool
		degraded      []string
		qualChanges   []alert.Change
		qualAnomalies []anomaly.Score
	)

	for _, c := range changes {
		signals++
		if c.Confidence >= threshold {
			qualChanges = append(qualChanges, c)
		}
	}
	for _, a := range anomalies {
		if a.Skipped() {
			degraded = append(degraded, fmt.Sprintf("anomaly model skipped for %s: %s", a.MetricName, a.SkipReason))
			continue
		}
		scored = true
		if !a.IsAnomaly {
			continue
		}
		signals++
		if a.Confidence >= threshold {
			qualAnomalies = append(qualAnomalies, a)
		}
	}

	if signals == 0 {
		return alert.Decision{Suppressed: alert.SuppressedNoSignal}
	}
	if len(qualChanges) == 0 && len(qualAnomalies) == 0 {
		return alert.Decision{Suppressed: alert.SuppressedBelowThreshold}
	}

	priority := s.priority(qualChanges, qualAnomalies, scored)
	urgency := alert.UrgencyForPriority(priority)

	confidence := s.confidence(qualChanges, qualAnomalies)
	if len(degraded) > 0 {
		confidence *= s.cfg.DegradedPenalty
	}
	confidence = math.Min(confidence, 0.99)

	hash := DedupHash(mon.ID, qualChanges, qualAnomalies)

	window := s.throttleWindow(urgency)
	dayAgo := now.Add(-24 * time.Hour)
	sentToday := 0
	for _, r := range recent {
		if r.DedupHash == hash && r.CreatedAt.After(now.Add(-window)) {
			return alert.Decision{Suppressed: alert.SuppressedDuplicate}
		}
		if r.CreatedAt.After(dayAgo) {
			sentToday++
		}
	}
	if s.cfg.DailyCap > 0 && sentToday >= s.cfg.DailyCap {
		return alert.Decision{Suppressed: alert.SuppressedDailyCap}
	}

	a := &alert.Alert{
		ID:              uuid.New().String(),
		MonitorID:       mon.ID,
		Confidence:      confidence,
		Changes:         qualChanges,
		Anomalies:       qualAnomalies,
		DegradedReasons: degraded,
		Priority:        priority,
		Urgency:         urgency,
		DedupHash:       hash,
		CreatedAt:       now.UTC(),
	}
	if a.Changes == nil {
		a.Changes = []alert.Change{}
	}
	a.Title, a.Summary = s.describe(mon, qualChanges, qualAnomalies)

	return alert.Decision{Alert: a}
}

// priority is the weighted mean of the available factors on a 0-10 scale
func (s *AlertScorer) priority(changes []alert.Change, anomalies []anomaly.Score, anomaliesScored bool) float64 {
	var sum, weight float64

	u := 0.0
	for _, c := range changes {
		u = math.Max(u, s.changeUrgency(c))
	}
	if len(changes) == 0 {
		u = urgencyAnomalyOnly
	}
	sum += urgencyWeight * u
	weight += urgencyWeight

	if m, ok := s.magnitude(changes); ok {
		sum += magnitudeWeight * m
		weight += magnitudeWeight
	}

	if anomaliesScored {
		a := 0.0
		for _, an := range anomalies {
			a = math.Max(a, an.Severity)
		}
		sum += anomalyWeight * a
		weight += anomalyWeight
	}

	return math.Round(10*sum/weight*10) / 10
}

func (s *AlertScorer) changeUrgency(c alert.Change) float64 {
	switch c.ChangeType {
	case alert.ChangeMetricIncrease, alert.ChangeMetricDecrease:
		if s.keyMetrics[strings.ToLower(c.Metric)] {
			return urgencyKeyMetric
		}
		return urgencyMetric
	case alert.ChangeNarrative:
		return urgencyNarrative
	default:
		return urgencyPresence
	}
}

// magnitude is the largest relative metric move, saturating at 1. It is
// unavailable when no metric moved.
func (s *AlertScorer) magnitude(changes []alert.Change) (float64, bool) {
	m, ok := 0.0, false
	for _, c := range changes {
		if c.ChangeType != alert.ChangeMetricIncrease && c.ChangeType != alert.ChangeMetricDecrease {
			continue
		}
		ok = true
		if c.ChangePct == nil {
			// A move away from zero has no relative size
			return 1, true
		}
		m = math.Max(m, math.Min(1, math.Abs(*c.ChangePct)/s.cfg.MagnitudeSaturation))
	}
	return m, ok
}

func (s *AlertScorer) confidence(changes []alert.Change, anomalies []anomaly.Score) float64 {
	var sum float64
	for _, c := range changes {
		sum += c.Confidence
	}
	for _, a := range anomalies {
		sum += a.Confidence
	}
	return sum / float64(len(changes)+len(anomalies))
}

func (s *AlertScorer) throttleWindow(urgency string) time.Duration {
	switch urgency {
	case alert.UrgencyCritical:
		return s.cfg.CriticalWindow
	case alert.UrgencyHigh:
		return s.cfg.HighWindow
	default:
		return s.cfg.DefaultWindow
	}
}

func (s *AlertScorer) describe(mon *monitor.Monitor, changes []alert.Change, anomalies []anomaly.Score) (string, string) {
	var lines []string
	for _, c := range changes {
		lines = append(lines, c.Description)
	}
	for _, a := range anomalies {
		lines = append(lines, fmt.Sprintf("%s anomaly on %s: %s observed, %s expected",
			strings.ReplaceAll(a.AnomalyType, "_", " "), a.MetricName,
			formatFloat(a.ActualValue), formatFloat(a.ForecastValue)))
	}

	var headline string
	switch {
	case len(changes) > 0:
		best := changes[0]
		for _, c := range changes[1:] {
			if s.changeUrgency(c) > s.changeUrgency(best) ||
				(s.changeUrgency(c) == s.changeUrgency(best) && c.Confidence > best.Confidence) {
				best = c
			}
		}
		headline = best.Title
	default:
		headline = fmt.Sprintf("Unusual %s", anomalies[0].MetricName)
	}

	title := fmt.Sprintf("%s: %s", mon.Entity, headline)
	if extra := len(changes) + len(anomalies) - 1; extra > 0 {
		title = fmt.Sprintf("%s (+%d more)", title, extra)
	}
	return title, strings.Join(lines, "\n")
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// DedupHash fingerprints the qualifying signals of an alert so that the
// same situation reported twice hashes identically.
func DedupHash(monitorID string, changes []alert.Change, anomalies []anomaly.Score) string {
	sigs := make([]string, 0, len(changes)+len(anomalies))
	for _, c := range changes {
		sigs = append(sigs, changeSignature(c))
	}
	for _, a := range anomalies {
		sigs = append(sigs, fmt.Sprintf("anomaly:%s:%s", a.MetricName, a.AnomalyType))
	}
	sort.Strings(sigs)

	h := sha256.New()
	h.Write([]byte(monitorID))
	for _, sig := range sigs {
		h.Write([]byte{0})
		h.Write([]byte(sig))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func changeSignature(c alert.Change) string {
	switch c.ChangeType {
	case alert.ChangeMetricIncrease, alert.ChangeMetricDecrease:
		dir := "up"
		if c.ChangeType == alert.ChangeMetricDecrease {
			dir = "down"
		}
		pct := "inf"
		if c.ChangePct != nil {
			pct = fmt.Sprintf("%.1f", math.Round(math.Abs(*c.ChangePct)*10)/10)
		}
		return fmt.Sprintf("metric:%s:%s:%s", c.Metric, dir, pct)
	case alert.ChangeMetricAdded:
		return "added:" + c.Metric
	case alert.ChangeMetricRemoved:
		return "removed:" + c.Metric
	case alert.ChangeNarrative:
		sum := sha256.Sum256([]byte(fmt.Sprint(c.CurrentValue)))
		return fmt.Sprintf("narrative:%s:%s", c.Field, hex.EncodeToString(sum[:8]))
	default:
		return c.ChangeType + ":" + c.Metric + c.Field
	}
}
