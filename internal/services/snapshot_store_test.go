package services

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/repository/postgres"
	"github.com/pratik-mahalle/changewatch/internal/testutil"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json"})
}

func storeConfig(batch int) config.StoreConfig {
	cfg := config.Default().Store
	cfg.BatchSize = batch
	cfg.FlushInterval = 0
	return cfg
}

func newSQLSnapshotStore(t *testing.T, batch int) (*SnapshotStore, snapshot.Repository) {
	t.Helper()
	db := testutil.NewTestDB(t)
	t.Cleanup(func() { testutil.CleanupDB(db) })

	repo := postgres.NewSnapshotRepository(postgres.Wrap(db, "sqlite"))
	return NewSnapshotStore(repo, newTestCodec(t), storeConfig(batch), testLogger()), repo
}

func snap(monitorID string, ts time.Time, revenue float64) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		MonitorID: monitorID,
		Timestamp: ts,
		Payload:   &snapshot.Payload{Metrics: map[string]float64{"revenue": revenue}},
	}
}

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func TestSnapshotStore_RejectsOutOfOrder(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 10)
	ctx := context.Background()

	if _, err := store.Store(ctx, snap("m1", t0, 100)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	tests := []struct {
		name    string
		ts      time.Time
		wantErr bool
	}{
		{name: "equal timestamp", ts: t0, wantErr: true},
		{name: "older timestamp", ts: t0.Add(-time.Second), wantErr: true},
		{name: "newer timestamp", ts: t0.Add(time.Second), wantErr: false},
		{name: "replay of newer", ts: t0.Add(time.Second), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Store(ctx, snap("m1", tt.ts, 100))
			if (err != nil) != tt.wantErr {
				t.Errorf("Store() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.IsCode(err, errors.ErrCodeOutOfOrder) {
				t.Errorf("Store() error = %v, want OUT_OF_ORDER", err)
			}
		})
	}

	// Other monitors are independent
	if _, err := store.Store(ctx, snap("m2", t0.Add(-time.Hour), 5)); err != nil {
		t.Errorf("Store(m2) error = %v", err)
	}
}

func TestSnapshotStore_SeedsOrderingFromStorage(t *testing.T) {
	store, repo := newSQLSnapshotStore(t, 1)
	ctx := context.Background()

	if _, err := store.Store(ctx, snap("m1", t0, 100)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	// A fresh store over the same table must know the last timestamp
	fresh := NewSnapshotStore(repo, newTestCodec(t), storeConfig(1), testLogger())
	_, err := fresh.Store(ctx, snap("m1", t0.Add(-time.Minute), 90))
	if !errors.IsCode(err, errors.ErrCodeOutOfOrder) {
		t.Errorf("Store() error = %v, want OUT_OF_ORDER", err)
	}
}

func TestSnapshotStore_ConcurrentWritersKeepOrder(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Store(ctx, snap("m1", t0.Add(time.Duration(i)*time.Second), float64(i)))
		}(i)
	}
	wg.Wait()

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, err := store.Range(ctx, "m1", t0, t0.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Range() returned nothing")
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d: %v then %v", i, got[i-1].Timestamp, got[i].Timestamp)
		}
	}
}

func TestSnapshotStore_BatchesWrites(t *testing.T) {
	repo := testutil.NewMockSnapshotRepository()
	store := NewSnapshotStore(repo, newTestCodec(t), storeConfig(3), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ack, err := store.Store(ctx, snap("m1", t0.Add(time.Duration(i)*time.Minute), float64(100+i)))
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if ack.Flushed {
			t.Errorf("Store() #%d flushed before the batch was full", i)
		}
	}
	if repo.Count("m1") != 0 {
		t.Errorf("repository has %d snapshots before flush, want 0", repo.Count("m1"))
	}

	// Pending writes are readable
	latest, err := store.Latest(ctx, "m1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil || latest.Payload.Metrics["revenue"] != 101 {
		t.Errorf("Latest() = %+v, want pending revenue 101", latest)
	}

	ack, err := store.Store(ctx, snap("m1", t0.Add(2*time.Minute), 102))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !ack.Flushed {
		t.Error("Store() did not flush a full batch")
	}
	if repo.Count("m1") != 3 || repo.Batches != 1 {
		t.Errorf("repository has %d snapshots in %d batches, want 3 in 1", repo.Count("m1"), repo.Batches)
	}
}

func TestSnapshotStore_FailedFlushKeepsBatch(t *testing.T) {
	repo := testutil.NewMockSnapshotRepository()
	store := NewSnapshotStore(repo, newTestCodec(t), storeConfig(10), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		store.Store(ctx, snap("m1", t0.Add(time.Duration(i)*time.Minute), float64(i)))
	}

	repo.InsertError = fmt.Errorf("disk full")
	err := store.Flush(ctx)
	if !errors.IsCode(err, errors.ErrCodeStorage) {
		t.Fatalf("Flush() error = %v, want STORAGE_ERROR", err)
	}
	if store.Pending() != 3 {
		t.Errorf("Pending() = %d after failed flush, want 3", store.Pending())
	}

	repo.InsertError = nil
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() retry error = %v", err)
	}
	if store.Pending() != 0 || repo.Count("m1") != 3 {
		t.Errorf("after retry: pending=%d stored=%d, want 0 and 3", store.Pending(), repo.Count("m1"))
	}
	for i, s := range repo.Snapshots["m1"] {
		if want := t0.Add(time.Duration(i) * time.Minute); !s.Timestamp.Equal(want) {
			t.Errorf("snapshot %d timestamp = %v, want %v", i, s.Timestamp, want)
		}
	}
}

func TestSnapshotStore_DiscardPending(t *testing.T) {
	repo := testutil.NewMockSnapshotRepository()
	store := NewSnapshotStore(repo, newTestCodec(t), storeConfig(10), testLogger())
	ctx := context.Background()

	store.Store(ctx, snap("m1", t0, 100))
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	other, _ := store.Store(ctx, snap("m2", t0.Add(time.Minute), 5))
	ack, _ := store.Store(ctx, snap("m1", t0.Add(time.Hour), 130))

	if !store.Discard(ack.SnapshotID) {
		t.Fatal("Discard() = false for a pending write")
	}
	if store.Discard(ack.SnapshotID) {
		t.Error("Discard() = true twice for the same write")
	}
	if store.Pending() != 1 {
		t.Errorf("Pending() = %d, want only the other monitor's write", store.Pending())
	}

	latest, err := store.Latest(ctx, "m1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Payload.Metrics["revenue"] != 100 {
		t.Errorf("Latest() revenue = %v, want the persisted 100", latest.Payload.Metrics["revenue"])
	}

	// the watermark is rolled back, so an earlier retry is still in order
	if _, err := store.Store(ctx, snap("m1", t0.Add(30*time.Minute), 120)); err != nil {
		t.Errorf("Store() after discard error = %v", err)
	}
	if _, err := store.Store(ctx, snap("m1", t0, 90)); !errors.IsCode(err, errors.ErrCodeOutOfOrder) {
		t.Errorf("Store() at the persisted timestamp error = %v, want OUT_OF_ORDER", err)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if store.Discard(other.SnapshotID) {
		t.Error("Discard() = true for a persisted write")
	}
	if repo.Count("m1") != 2 || repo.Count("m2") != 1 {
		t.Errorf("stored m1=%d m2=%d, want 2 and 1", repo.Count("m1"), repo.Count("m2"))
	}
}

func TestSnapshotStore_RangePagination(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 4)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		store.Store(ctx, snap("m1", t0.Add(time.Duration(i)*time.Hour), float64(i)))
	}
	// Leave some writes pending so pages span both sources

	var all []*snapshot.Snapshot
	start := t0
	end := t0.Add(24 * time.Hour)
	for page := 0; page < 10; page++ {
		got, err := store.Range(ctx, "m1", start, end, 3)
		if err != nil {
			t.Fatalf("Range() error = %v", err)
		}
		if len(got) == 0 {
			break
		}
		all = append(all, got...)
		start = got[len(got)-1].Timestamp.Add(time.Nanosecond)
	}

	if len(all) != 10 {
		t.Fatalf("paginated Range() returned %d snapshots, want 10", len(all))
	}
	for i, s := range all {
		if s.Payload.Metrics["revenue"] != float64(i) {
			t.Errorf("snapshot %d revenue = %v, want %d", i, s.Payload.Metrics["revenue"], i)
		}
	}
}

func TestSnapshotStore_CacheMissesAfterNewWrite(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 1)
	ctx := context.Background()

	store.Store(ctx, snap("m1", t0, 1))
	first, _ := store.Recent(ctx, "m1", t0.Add(time.Hour), 10)
	if len(first) != 1 {
		t.Fatalf("Recent() returned %d, want 1", len(first))
	}

	store.Store(ctx, snap("m1", t0.Add(time.Minute), 2))
	second, _ := store.Recent(ctx, "m1", t0.Add(time.Hour), 10)
	if len(second) != 2 {
		t.Errorf("Recent() after write returned %d, want 2", len(second))
	}
}

func TestSnapshotStore_LargePayloadRoundTrip(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 1)
	ctx := context.Background()

	original := largePayload()
	ack, err := store.Store(ctx, &snapshot.Snapshot{MonitorID: "m1", Timestamp: t0, Payload: original})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !ack.Compressed {
		t.Fatal("Store() did not compress a 50 KB payload")
	}
	if ack.CompressionRatio < 0.3 || ack.CompressionRatio > 0.5 {
		t.Errorf("compression ratio = %.3f, want between 0.3 and 0.5", ack.CompressionRatio)
	}

	got, err := store.Latest(ctx, "m1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !reflect.DeepEqual(got.Payload, original) {
		t.Error("retrieved payload differs from the original")
	}
}

type recordingArchiver struct {
	archived []*snapshot.Snapshot
	err      error
}

func (a *recordingArchiver) Archive(ctx context.Context, monitorID string, snapshots []*snapshot.Snapshot) error {
	if a.err != nil {
		return a.err
	}
	a.archived = append(a.archived, snapshots...)
	return nil
}

func TestSnapshotStore_Cleanup(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 100)
	ctx := context.Background()
	now := time.Now().UTC()
	store.now = func() time.Time { return now }

	// Twelve old snapshots, then three inside the retention window
	for i := 0; i < 12; i++ {
		store.Store(ctx, snap("m1", now.AddDate(0, 0, -200+i), float64(i)))
	}
	for i := 0; i < 3; i++ {
		store.Store(ctx, snap("m1", now.AddDate(0, 0, -10+i), float64(i)))
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	k, err := store.Cleanup(ctx, "m1", 90, true)
	if err != nil {
		t.Fatalf("Cleanup(dry run) error = %v", err)
	}
	if k != 12 {
		t.Errorf("Cleanup(dry run) = %d, want 12", k)
	}

	again, _ := store.Cleanup(ctx, "m1", 90, true)
	if again != k {
		t.Errorf("dry run deleted data: second count %d, want %d", again, k)
	}

	archiver := &recordingArchiver{}
	store.SetArchiver(archiver)

	deleted, err := store.Cleanup(ctx, "m1", 90, false)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != k {
		t.Errorf("Cleanup() deleted %d, want %d", deleted, k)
	}
	if len(archiver.archived) != k {
		t.Errorf("archived %d snapshots, want %d", len(archiver.archived), k)
	}

	left, _ := store.Range(ctx, "m1", now.AddDate(-1, 0, 0), now.Add(time.Hour), 0)
	if len(left) != 3 {
		t.Errorf("%d snapshots left, want 3", len(left))
	}
}

func TestSnapshotStore_CleanupKeepsNewest(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 1)
	ctx := context.Background()
	now := time.Now().UTC()

	store.Store(ctx, snap("m1", now.AddDate(0, 0, -300), 1))
	store.Store(ctx, snap("m1", now.AddDate(0, 0, -200), 2))

	deleted, err := store.Cleanup(ctx, "m1", 90, false)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted %d, want 1", deleted)
	}
	latest, _ := store.Latest(ctx, "m1")
	if latest == nil || latest.Payload.Metrics["revenue"] != 2 {
		t.Errorf("Latest() = %+v, want the newest snapshot kept", latest)
	}
}

func TestSnapshotStore_CleanupArchiveFailure(t *testing.T) {
	store, _ := newSQLSnapshotStore(t, 1)
	ctx := context.Background()
	now := time.Now().UTC()

	store.Store(ctx, snap("m1", now.AddDate(0, 0, -300), 1))
	store.Store(ctx, snap("m1", now, 2))
	store.SetArchiver(&recordingArchiver{err: fmt.Errorf("bucket unavailable")})

	if _, err := store.Cleanup(ctx, "m1", 90, false); !errors.IsCode(err, errors.ErrCodeStorage) {
		t.Fatalf("Cleanup() error = %v, want STORAGE_ERROR", err)
	}
	if k, _ := store.Cleanup(ctx, "m1", 90, true); k != 1 {
		t.Errorf("snapshot deleted despite failed archive, count = %d", k)
	}
}

func TestSnapshotStore_CloseFlushes(t *testing.T) {
	repo := testutil.NewMockSnapshotRepository()
	cfg := storeConfig(10)
	cfg.FlushInterval = time.Hour
	store := NewSnapshotStore(repo, newTestCodec(t), cfg, testLogger())
	ctx := context.Background()

	store.Start(ctx)
	store.Store(ctx, snap("m1", t0, 1))
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if repo.Count("m1") != 1 {
		t.Errorf("Close() left %d snapshots unflushed", 1-repo.Count("m1"))
	}
}
