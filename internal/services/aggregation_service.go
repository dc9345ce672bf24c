package services

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/detector"
	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

// Significant change threshold between consecutive period means
const significantChangePct = 0.20

// Samples used for the short and long moving averages
const (
	shortWindow = 7
	longWindow  = 30
)

// AggregationService implements aggregation.Service
type AggregationService struct {
	repo         aggregation.Repository
	store        snapshot.Store
	trendEpsilon float64
	logger       *logger.Logger
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(repo aggregation.Repository, store snapshot.Store, trendEpsilon float64, log *logger.Logger) aggregation.Service {
	return &AggregationService{
		repo:         repo,
		store:        store,
		trendEpsilon: trendEpsilon,
		logger:       log,
	}
}

// Aggregate recomputes the rollup for the period containing periodStart and
// upserts it. Running it twice over the same data yields the same value.
func (s *AggregationService) Aggregate(ctx context.Context, monitorID, periodType string, periodStart time.Time) (*aggregation.Aggregation, error) {
	if !aggregation.IsValidPeriod(periodType) {
		return nil, errors.ValidationError("Invalid period type", map[string]interface{}{
			"period_type": periodType,
		})
	}

	start := aggregation.PeriodStart(periodType, periodStart)
	end := aggregation.PeriodEnd(periodType, start)

	current, err := s.store.Range(ctx, monitorID, start, end, 0)
	if err != nil {
		return nil, err
	}
	previous, err := s.store.Range(ctx, monitorID, aggregation.PreviousPeriodStart(periodType, start), start, 0)
	if err != nil {
		return nil, err
	}
	history, err := s.store.Recent(ctx, monitorID, end, longWindow)
	if err != nil {
		return nil, err
	}

	agg := &aggregation.Aggregation{
		MonitorID:     monitorID,
		PeriodType:    periodType,
		PeriodStart:   start,
		PeriodEnd:     end,
		SnapshotCount: len(current),
		Metrics:       []aggregation.MetricSummary{},
	}

	for _, name := range metricNames(current) {
		values := snapshot.Values(snapshot.Series(current, name))
		summary := s.summarise(name, values)

		hist := snapshot.Values(snapshot.Series(history, name))
		summary.MovingAvg7 = detector.Mean(detector.Tail(hist, shortWindow))
		summary.MovingAvg30 = detector.Mean(detector.Tail(hist, longWindow))

		prevValues := snapshot.Values(snapshot.Series(previous, name))
		if len(prevValues) > 0 {
			prevMean := detector.Mean(prevValues)
			summary.PreviousMean = &prevMean
			if prevMean != 0 {
				pct := (summary.Mean - prevMean) / math.Abs(prevMean)
				summary.ChangePct = &pct
				if math.Abs(pct) > significantChangePct {
					agg.SignificantChange = true
				}
			}
		}

		agg.Metrics = append(agg.Metrics, summary)
	}

	if err := s.repo.Upsert(ctx, agg); err != nil {
		s.logger.ErrorWithErr(err, "Failed to store aggregation")
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"monitor_id":         monitorID,
		"period_type":        periodType,
		"period_start":       start,
		"snapshot_count":     agg.SnapshotCount,
		"significant_change": agg.SignificantChange,
	}).Debug("Aggregation computed")

	return agg, nil
}

func (s *AggregationService) summarise(name string, values []float64) aggregation.MetricSummary {
	lo, hi := detector.MinMax(values)
	mean := detector.Mean(values)
	slope, _ := detector.LinearFit(values)

	normalised := slope / math.Max(math.Abs(mean), 1e-9)
	trend := aggregation.TrendStable
	switch {
	case normalised > s.trendEpsilon:
		trend = aggregation.TrendUp
	case normalised < -s.trendEpsilon:
		trend = aggregation.TrendDown
	}

	return aggregation.MetricSummary{
		Name:   name,
		Count:  len(values),
		Min:    lo,
		Max:    hi,
		Mean:   mean,
		StdDev: detector.StdDev(values),
		Trend:  trend,
		Slope:  slope,
	}
}

// Get retrieves a precomputed rollup, or nil when it was never computed
func (s *AggregationService) Get(ctx context.Context, monitorID, periodType string, periodStart time.Time) (*aggregation.Aggregation, error) {
	if !aggregation.IsValidPeriod(periodType) {
		return nil, errors.ValidationError("Invalid period type", map[string]interface{}{
			"period_type": periodType,
		})
	}
	return s.repo.Get(ctx, monitorID, periodType, aggregation.PeriodStart(periodType, periodStart))
}

// ListByMonitor returns the most recent rollups of one period type
func (s *AggregationService) ListByMonitor(ctx context.Context, monitorID, periodType string, limit int) ([]*aggregation.Aggregation, error) {
	if !aggregation.IsValidPeriod(periodType) {
		return nil, errors.ValidationError("Invalid period type", map[string]interface{}{
			"period_type": periodType,
		})
	}
	return s.repo.ListByMonitor(ctx, monitorID, periodType, limit)
}

// metricNames is the sorted union of metric names across snapshots
func metricNames(snaps []*snapshot.Snapshot) []string {
	seen := make(map[string]struct{})
	for _, sn := range snaps {
		if sn.Payload == nil {
			continue
		}
		for name := range sn.Payload.Metrics {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
