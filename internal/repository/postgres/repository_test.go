package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	sqlDB := testutil.NewTestDB(t)
	t.Cleanup(func() { testutil.CleanupDB(sqlDB) })
	return Wrap(sqlDB, "sqlite")
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		query  string
		want   string
	}{
		{name: "sqlite untouched", driver: "sqlite", query: "SELECT * FROM t WHERE a = ? AND b = ?", want: "SELECT * FROM t WHERE a = ? AND b = ?"},
		{name: "postgres numbered", driver: "postgres", query: "SELECT * FROM t WHERE a = ? AND b = ?", want: "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{name: "no placeholders", driver: "postgres", query: "SELECT 1", want: "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &DB{Driver: tt.driver}
			if got := db.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func newMonitor(id string) *monitor.Monitor {
	now := time.Now().UTC()
	return &monitor.Monitor{
		ID:                   id,
		UserID:               "user-1",
		Entity:               "Acme Corp",
		Category:             "saas",
		Frequency:            monitor.FrequencyDaily,
		Frameworks:           []string{"swot"},
		AlertThreshold:       0.7,
		NotificationChannels: []string{"log"},
		Status:               monitor.StatusActive,
		NextCheck:            &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestMonitorRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewMonitorRepository(db)
	ctx := context.Background()

	m := newMonitor(uuid.New().String())
	if err := repo.Create(ctx, m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Entity != "Acme Corp" || len(got.Frameworks) != 1 || got.NotificationChannels[0] != "log" {
		t.Errorf("GetByID() = %+v, fields not round-tripped", got)
	}

	due, err := repo.ListDue(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 1 {
		t.Errorf("ListDue() returned %d monitors, want 1", len(due))
	}

	for want := 1; want <= 2; want++ {
		count, err := repo.RecordFailure(ctx, m.ID, "producer timeout", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if count != want {
			t.Errorf("RecordFailure() count = %d, want %d", count, want)
		}
	}

	changed, err := repo.TransitionStatus(ctx, m.ID, monitor.StatusPaused, monitor.StatusError)
	if err != nil {
		t.Fatalf("TransitionStatus() error = %v", err)
	}
	if changed {
		t.Error("TransitionStatus() changed a monitor that was not in the expected state")
	}

	changed, err = repo.TransitionStatus(ctx, m.ID, monitor.StatusActive, monitor.StatusError)
	if err != nil || !changed {
		t.Fatalf("TransitionStatus() = %v, %v, want true", changed, err)
	}

	changed, err = repo.TransitionStatus(ctx, m.ID, monitor.StatusError, monitor.StatusActive)
	if err != nil || !changed {
		t.Fatalf("TransitionStatus() = %v, %v, want true", changed, err)
	}
	got, _ = repo.GetByID(ctx, m.ID)
	if got.ConsecutiveErrorCount != 0 || got.LastError != "" {
		t.Errorf("reactivated monitor kept errors: count=%d last=%q", got.ConsecutiveErrorCount, got.LastError)
	}

	_, err = repo.GetByID(ctx, "missing")
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("GetByID(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestMonitorRepository_UpdateConfigIsConditional(t *testing.T) {
	db := newTestDB(t)
	repo := NewMonitorRepository(db)
	ctx := context.Background()

	m := newMonitor(uuid.New().String())
	if err := repo.Create(ctx, m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	stale, _ := repo.GetByID(ctx, m.ID)

	next := time.Now().Add(6 * time.Hour).UTC()
	if err := repo.RecordSuccess(ctx, m.ID, time.Now(), next); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}

	stale.AlertThreshold = 0.3
	if err := repo.UpdateConfig(ctx, stale, false); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, m.ID)
	if got.AlertThreshold != 0.3 {
		t.Errorf("AlertThreshold = %v, want 0.3", got.AlertThreshold)
	}
	if got.NextCheck == nil || got.NextCheck.UnixNano() != next.UnixNano() {
		t.Errorf("NextCheck = %v, want %v kept from the last check", got.NextCheck, next)
	}

	if changed, err := repo.TransitionStatus(ctx, m.ID, monitor.StatusActive, monitor.StatusDeleted); err != nil || !changed {
		t.Fatalf("TransitionStatus() = %v, %v", changed, err)
	}
	stale.AlertThreshold = 0.9
	err := repo.UpdateConfig(ctx, stale, false)
	if !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("UpdateConfig() after delete error = %v, want CONFLICT", err)
	}
	got, _ = repo.GetByID(ctx, m.ID)
	if got.Status != monitor.StatusDeleted || got.AlertThreshold != 0.3 {
		t.Errorf("deleted monitor = status %s threshold %v, want untouched", got.Status, got.AlertThreshold)
	}

	missing := newMonitor("missing")
	if err := repo.UpdateConfig(ctx, missing, true); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("UpdateConfig(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestMonitorRepository_ListExcludesDeleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewMonitorRepository(db)
	ctx := context.Background()

	live := newMonitor("m-live")
	gone := newMonitor("m-gone")
	gone.Status = monitor.StatusDeleted
	repo.Create(ctx, live)
	repo.Create(ctx, gone)

	list, total, err := repo.List(ctx, monitor.Filter{UserID: "user-1"}, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].ID != "m-live" {
		t.Errorf("List() = %d monitors (total %d), want only m-live", len(list), total)
	}
}

func snapshotAt(monitorID string, ts time.Time) *snapshot.Snapshot {
	data := []byte(`{"metrics":{"revenue":100}}`)
	return &snapshot.Snapshot{
		ID:               uuid.New().String(),
		MonitorID:        monitorID,
		Timestamp:        ts,
		Data:             data,
		CompressionRatio: 1,
		OriginalSize:     len(data),
		StoredSize:       len(data),
	}
}

func TestSnapshotRepository_RangeAndRecent(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []*snapshot.Snapshot
	for i := 0; i < 5; i++ {
		batch = append(batch, snapshotAt("m1", base.Add(time.Duration(i)*time.Hour)))
	}
	if err := repo.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	got, err := repo.Range(ctx, "m1", base.Add(time.Hour), base.Add(4*time.Hour), 0)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Range() returned %d snapshots, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("Range() not ascending at %d", i)
		}
	}

	limited, _ := repo.Range(ctx, "m1", base, base.Add(24*time.Hour), 2)
	if len(limited) != 2 {
		t.Errorf("Range(limit=2) returned %d snapshots", len(limited))
	}

	recent, err := repo.Recent(ctx, "m1", base.Add(4*time.Hour), 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || !recent[0].Timestamp.Equal(base.Add(2*time.Hour)) || !recent[1].Timestamp.Equal(base.Add(3*time.Hour)) {
		t.Errorf("Recent() = %v, want hours 2 and 3 ascending", recent)
	}

	latest, err := repo.Latest(ctx, "m1")
	if err != nil || latest == nil || !latest.Timestamp.Equal(base.Add(4*time.Hour)) {
		t.Errorf("Latest() = %v, %v", latest, err)
	}

	none, err := repo.Latest(ctx, "other")
	if err != nil || none != nil {
		t.Errorf("Latest(other) = %v, %v, want nil, nil", none, err)
	}
}

func TestSnapshotRepository_InsertBatchIsAtomic(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := snapshotAt("m1", ts)
	dup := snapshotAt("m1", ts)

	if err := repo.InsertBatch(ctx, []*snapshot.Snapshot{first, dup}); err == nil {
		t.Fatal("InsertBatch() accepted a duplicate timestamp")
	}
	latest, _ := repo.Latest(ctx, "m1")
	if latest != nil {
		t.Error("InsertBatch() left a partial batch behind")
	}
}

func TestSnapshotRepository_Expired(t *testing.T) {
	db := newTestDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -200)
	var batch []*snapshot.Snapshot
	for i := 0; i < 4; i++ {
		batch = append(batch, snapshotAt("m1", old.Add(time.Duration(i)*time.Hour)))
	}
	repo.InsertBatch(ctx, batch)

	cutoff := time.Now().UTC().AddDate(0, 0, -90)

	count, err := repo.CountExpired(ctx, "m1", cutoff)
	if err != nil {
		t.Fatalf("CountExpired() error = %v", err)
	}
	// Newest snapshot is always kept
	if count != 3 {
		t.Errorf("CountExpired() = %d, want 3", count)
	}

	listed, _ := repo.ListExpired(ctx, "m1", cutoff)
	if len(listed) != count {
		t.Errorf("ListExpired() returned %d, want %d", len(listed), count)
	}

	deleted, err := repo.DeleteExpired(ctx, "m1", cutoff)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != count {
		t.Errorf("DeleteExpired() = %d, want %d", deleted, count)
	}

	latest, _ := repo.Latest(ctx, "m1")
	if latest == nil {
		t.Fatal("DeleteExpired() removed the newest snapshot")
	}

	ids, _ := repo.MonitorIDs(ctx)
	if len(ids) != 1 || ids[0] != "m1" {
		t.Errorf("MonitorIDs() = %v", ids)
	}
}

func TestAggregationRepository_Upsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewAggregationRepository(db)
	ctx := context.Background()

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	agg := &aggregation.Aggregation{
		MonitorID:     "m1",
		PeriodType:    aggregation.PeriodDaily,
		PeriodStart:   start,
		PeriodEnd:     start.AddDate(0, 0, 1),
		SnapshotCount: 2,
		Metrics:       []aggregation.MetricSummary{{Name: "revenue", Count: 2, Mean: 110, Trend: aggregation.TrendUp}},
	}
	if err := repo.Upsert(ctx, agg); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	agg.SnapshotCount = 3
	agg.SignificantChange = true
	if err := repo.Upsert(ctx, agg); err != nil {
		t.Fatalf("Upsert() second call error = %v", err)
	}

	got, err := repo.Get(ctx, "m1", aggregation.PeriodDaily, start)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SnapshotCount != 3 || !got.SignificantChange || got.Metrics[0].Name != "revenue" {
		t.Errorf("Get() = %+v, want updated row", got)
	}

	list, _ := repo.ListByMonitor(ctx, "m1", aggregation.PeriodDaily, 10)
	if len(list) != 1 {
		t.Errorf("ListByMonitor() returned %d rows, want 1", len(list))
	}

	missing, err := repo.Get(ctx, "m1", aggregation.PeriodWeekly, start)
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestAlertRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewAlertRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	pct := 0.3
	a := &alert.Alert{
		ID:         "a1",
		MonitorID:  "m1",
		Title:      "Revenue up 30%",
		Confidence: 0.84,
		Changes:    []alert.Change{{ChangeType: alert.ChangeMetricIncrease, Metric: "revenue", ChangePct: &pct}},
		Priority:   8.1,
		Urgency:    alert.UrgencyHigh,
		DedupHash:  "abc",
		CreatedAt:  now,
	}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	since, err := repo.ListSince(ctx, "m1", now.Add(-time.Hour))
	if err != nil || len(since) != 1 {
		t.Fatalf("ListSince() = %d alerts, %v", len(since), err)
	}
	if *since[0].Changes[0].ChangePct != 0.3 {
		t.Errorf("ListSince() change pct = %v", *since[0].Changes[0].ChangePct)
	}

	if err := repo.MarkRead(ctx, "a1"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if err := repo.SetFeedback(ctx, "a1", alert.FeedbackUseful, "spot on"); err != nil {
		t.Fatalf("SetFeedback() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "a1")
	if !got.Read || got.UserFeedback != alert.FeedbackUseful {
		t.Errorf("GetByID() = %+v, want read with feedback", got)
	}

	unread, total, _ := repo.ListByMonitor(ctx, "m1", alert.Filter{UnreadOnly: true}, 10, 0)
	if total != 0 || len(unread) != 0 {
		t.Errorf("ListByMonitor(unread) = %d, want 0", total)
	}

	if err := repo.MarkRead(ctx, "missing"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("MarkRead(missing) error = %v, want NOT_FOUND", err)
	}
}
