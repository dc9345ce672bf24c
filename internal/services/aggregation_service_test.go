package services

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/repository/postgres"
	"github.com/pratik-mahalle/changewatch/internal/testutil"
)

func newTestAggregationService(t *testing.T) (aggregation.Service, *SnapshotStore) {
	t.Helper()
	db := testutil.NewTestDB(t)
	t.Cleanup(func() { testutil.CleanupDB(db) })
	wrapped := postgres.Wrap(db, "sqlite")

	store := NewSnapshotStore(postgres.NewSnapshotRepository(wrapped), newTestCodec(t), storeConfig(1), testLogger())
	svc := NewAggregationService(postgres.NewAggregationRepository(wrapped), store, 0.001, testLogger())
	return svc, store
}

func storeMetrics(t *testing.T, store *SnapshotStore, ts time.Time, metrics map[string]float64) {
	t.Helper()
	_, err := store.Store(context.Background(), &snapshot.Snapshot{
		MonitorID: "m1",
		Timestamp: ts,
		Payload:   &snapshot.Payload{Metrics: metrics},
	})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAggregationService_Daily(t *testing.T) {
	svc, store := newTestAggregationService(t)
	ctx := context.Background()

	// Monday 2024-06-03 is the previous day, Tuesday the aggregated one
	mon := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)

	storeMetrics(t, store, mon.Add(9*time.Hour), map[string]float64{"revenue": 80, "headcount": 50, "burn_rate": 0})
	storeMetrics(t, store, mon.Add(15*time.Hour), map[string]float64{"revenue": 80, "headcount": 50, "burn_rate": 0})
	storeMetrics(t, store, tue.Add(8*time.Hour), map[string]float64{"revenue": 100, "headcount": 50, "burn_rate": 5})
	storeMetrics(t, store, tue.Add(12*time.Hour), map[string]float64{"revenue": 110, "headcount": 50, "burn_rate": 5})
	storeMetrics(t, store, tue.Add(16*time.Hour), map[string]float64{"revenue": 120, "headcount": 50, "burn_rate": 5})

	agg, err := svc.Aggregate(ctx, "m1", aggregation.PeriodDaily, tue.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if !agg.PeriodStart.Equal(tue) || !agg.PeriodEnd.Equal(tue.AddDate(0, 0, 1)) {
		t.Errorf("period = [%v, %v), want [%v, %v)", agg.PeriodStart, agg.PeriodEnd, tue, tue.AddDate(0, 0, 1))
	}
	if agg.SnapshotCount != 3 {
		t.Errorf("SnapshotCount = %d, want 3", agg.SnapshotCount)
	}
	if !agg.SignificantChange {
		t.Error("SignificantChange = false, want true for a 37.5% revenue rise")
	}

	var names []string
	for _, m := range agg.Metrics {
		names = append(names, m.Name)
	}
	if want := []string{"burn_rate", "headcount", "revenue"}; !reflect.DeepEqual(names, want) {
		t.Errorf("metric order = %v, want %v", names, want)
	}

	revenue, _ := agg.Metric("revenue")
	if revenue.Count != 3 || revenue.Min != 100 || revenue.Max != 120 || !near(revenue.Mean, 110) {
		t.Errorf("revenue stats = %+v", revenue)
	}
	if !near(revenue.StdDev, 10) {
		t.Errorf("revenue StdDev = %v, want 10", revenue.StdDev)
	}
	if revenue.Trend != aggregation.TrendUp || !near(revenue.Slope, 10) {
		t.Errorf("revenue trend = %s slope %v, want up 10", revenue.Trend, revenue.Slope)
	}
	if !near(revenue.MovingAvg7, 98) || !near(revenue.MovingAvg30, 98) {
		t.Errorf("revenue moving averages = %v/%v, want 98/98", revenue.MovingAvg7, revenue.MovingAvg30)
	}
	if revenue.PreviousMean == nil || *revenue.PreviousMean != 80 {
		t.Errorf("revenue PreviousMean = %v, want 80", revenue.PreviousMean)
	}
	if revenue.ChangePct == nil || !near(*revenue.ChangePct, 0.375) {
		t.Errorf("revenue ChangePct = %v, want 0.375", revenue.ChangePct)
	}

	headcount, _ := agg.Metric("headcount")
	if headcount.Trend != aggregation.TrendStable || headcount.StdDev != 0 {
		t.Errorf("headcount = %+v, want stable with zero stddev", headcount)
	}

	burn, _ := agg.Metric("burn_rate")
	if burn.PreviousMean == nil || burn.ChangePct != nil {
		t.Errorf("burn_rate with zero previous mean: previous %v change %v, want previous set and no change", burn.PreviousMean, burn.ChangePct)
	}
}

func TestAggregationService_Idempotent(t *testing.T) {
	svc, store := newTestAggregationService(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)

	for i, v := range []float64{10, 12, 11, 15} {
		storeMetrics(t, store, day.Add(time.Duration(i+1)*time.Hour), map[string]float64{"revenue": v})
	}

	first, err := svc.Aggregate(ctx, "m1", aggregation.PeriodDaily, day)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	second, err := svc.Aggregate(ctx, "m1", aggregation.PeriodDaily, day.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Aggregate() not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}

	stored, err := svc.Get(ctx, "m1", aggregation.PeriodDaily, day.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored == nil || stored.SnapshotCount != 4 || len(stored.Metrics) != 1 {
		t.Fatalf("Get() = %+v, want the stored rollup", stored)
	}
	if stored.Metrics[0].Mean != first.Metrics[0].Mean {
		t.Errorf("stored mean = %v, want %v", stored.Metrics[0].Mean, first.Metrics[0].Mean)
	}

	list, err := svc.ListByMonitor(ctx, "m1", aggregation.PeriodDaily, 10)
	if err != nil {
		t.Fatalf("ListByMonitor() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListByMonitor() returned %d rollups, want 1 after upserting twice", len(list))
	}
}

func TestAggregationService_PeriodNormalisation(t *testing.T) {
	svc, store := newTestAggregationService(t)
	ctx := context.Background()

	// Wednesday 2024-06-05
	wed := time.Date(2024, 6, 5, 14, 30, 0, 0, time.UTC)
	storeMetrics(t, store, wed, map[string]float64{"revenue": 1})

	tests := []struct {
		period    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{aggregation.PeriodDaily, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 6, 0, 0, 0, 0, time.UTC)},
		{aggregation.PeriodWeekly, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)},
		{aggregation.PeriodMonthly, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			agg, err := svc.Aggregate(ctx, "m1", tt.period, wed)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			if !agg.PeriodStart.Equal(tt.wantStart) || !agg.PeriodEnd.Equal(tt.wantEnd) {
				t.Errorf("period = [%v, %v), want [%v, %v)", agg.PeriodStart, agg.PeriodEnd, tt.wantStart, tt.wantEnd)
			}
			if agg.SnapshotCount != 1 {
				t.Errorf("SnapshotCount = %d, want 1", agg.SnapshotCount)
			}
		})
	}
}

func TestAggregationService_InvalidPeriod(t *testing.T) {
	svc, _ := newTestAggregationService(t)

	_, err := svc.Aggregate(context.Background(), "m1", "hourly", time.Now())
	if !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("Aggregate() error = %v, want VALIDATION_ERROR", err)
	}
}

func TestAggregationService_GetMissing(t *testing.T) {
	svc, _ := newTestAggregationService(t)

	got, err := svc.Get(context.Background(), "m1", aggregation.PeriodDaily, time.Now())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}
