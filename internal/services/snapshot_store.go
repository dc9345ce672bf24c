package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/metrics"
)

// SnapshotStore is the batched, compressed and cached snapshot store.
// Writes are accepted into an in-memory FIFO batch and persisted in order;
// pending writes are visible to reads on the same store.
type SnapshotStore struct {
	repo     snapshot.Repository
	codec    *PayloadCodec
	archiver snapshot.Archiver
	cache    *expirable.LRU[string, []*snapshot.Snapshot]
	cfg      config.StoreConfig
	logger   *logger.Logger
	now      func() time.Time

	mu      sync.Mutex // guards pending and lastTS
	pending []*snapshot.Snapshot
	lastTS  map[string]time.Time

	flushMu sync.Mutex // serialises flushes

	stop chan struct{}
	done chan struct{}
}

// NewSnapshotStore creates a new snapshot store
func NewSnapshotStore(repo snapshot.Repository, codec *PayloadCodec, cfg config.StoreConfig, log *logger.Logger) *SnapshotStore {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 512
	}

	return &SnapshotStore{
		repo:   repo,
		codec:  codec,
		cache:  expirable.NewLRU[string, []*snapshot.Snapshot](cfg.CacheSize, nil, cfg.CacheTTL),
		cfg:    cfg,
		logger: log,
		now:    time.Now,
		lastTS: make(map[string]time.Time),
	}
}

// SetArchiver makes Cleanup archive snapshots before deleting them
func (s *SnapshotStore) SetArchiver(a snapshot.Archiver) {
	s.archiver = a
}

// Store validates ordering, encodes the payload and queues the snapshot.
// A full batch is flushed before returning.
func (s *SnapshotStore) Store(ctx context.Context, snap *snapshot.Snapshot) (snapshot.Ack, error) {
	if snap == nil || snap.MonitorID == "" {
		return snapshot.Ack{}, errors.ValidationError("Snapshot requires a monitor id", nil)
	}
	if snap.Timestamp.IsZero() {
		return snapshot.Ack{}, errors.ValidationError("Snapshot requires a timestamp", nil)
	}

	encoded, err := s.codec.Encode(snap.Payload)
	if err != nil {
		return snapshot.Ack{}, errors.StorageError("Failed to encode snapshot payload", err)
	}

	last, err := s.lastTimestamp(ctx, snap.MonitorID)
	if err != nil {
		return snapshot.Ack{}, err
	}

	record := &snapshot.Snapshot{
		ID:               snap.ID,
		MonitorID:        snap.MonitorID,
		Timestamp:        snap.Timestamp.UTC(),
		Payload:          snap.Payload,
		Compressed:       encoded.Compressed,
		CompressionRatio: encoded.Ratio,
		OriginalSize:     encoded.OriginalSize,
		StoredSize:       encoded.StoredSize,
		Data:             encoded.Data,
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	s.mu.Lock()
	// Re-read under the lock: another writer may have advanced it
	if ts, ok := s.lastTS[snap.MonitorID]; ok && ts.After(last) {
		last = ts
	}
	if !record.Timestamp.After(last) {
		s.mu.Unlock()
		return snapshot.Ack{}, errors.OutOfOrder(snap.MonitorID).WithDetails(map[string]interface{}{
			"timestamp":      record.Timestamp,
			"last_timestamp": last,
		})
	}
	s.lastTS[snap.MonitorID] = record.Timestamp
	s.pending = append(s.pending, record)
	full := len(s.pending) >= s.cfg.BatchSize
	s.mu.Unlock()

	// Reflect the stored form back to the caller
	snap.ID = record.ID
	snap.Timestamp = record.Timestamp
	snap.Compressed = record.Compressed
	snap.CompressionRatio = record.CompressionRatio
	snap.OriginalSize = record.OriginalSize
	snap.StoredSize = record.StoredSize

	if record.Compressed {
		metrics.RecordCompression(record.CompressionRatio)
	}

	ack := snapshot.Ack{
		SnapshotID:       record.ID,
		MonitorID:        record.MonitorID,
		Timestamp:        record.Timestamp,
		Compressed:       record.Compressed,
		CompressionRatio: record.CompressionRatio,
	}

	if full {
		if err := s.Flush(ctx); err != nil {
			// The write stays queued for the next flush
			s.logger.WithFields(map[string]interface{}{
				"monitor_id": snap.MonitorID,
			}).WarnWithErr(err, "Batch flush failed, snapshot remains pending")
			return ack, nil
		}
		ack.Flushed = true
	}

	return ack, nil
}

// lastTimestamp returns the last accepted timestamp, seeding it from storage
// the first time a monitor is seen.
func (s *SnapshotStore) lastTimestamp(ctx context.Context, monitorID string) (time.Time, error) {
	s.mu.Lock()
	ts, ok := s.lastTS[monitorID]
	s.mu.Unlock()
	if ok {
		return ts, nil
	}

	latest, err := s.repo.Latest(ctx, monitorID)
	if err != nil {
		return time.Time{}, errors.StorageError("Failed to read last snapshot timestamp", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.lastTS[monitorID]; ok {
		return current, nil
	}
	if latest != nil {
		ts = latest.Timestamp
		s.lastTS[monitorID] = ts
	}
	return ts, nil
}

// Flush persists every pending write in one transaction. On failure the
// batch is kept intact for the next attempt.
func (s *SnapshotStore) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := make([]*snapshot.Snapshot, len(s.pending))
	copy(batch, s.pending)
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		metrics.RecordFlushError()
		if errors.IsCode(err, errors.ErrCodeStorage) {
			return err
		}
		return errors.StorageError("Failed to flush snapshot batch", err)
	}

	// Writes queued during the flush stay behind the flushed prefix
	s.mu.Lock()
	s.pending = append(s.pending[:0:0], s.pending[len(batch):]...)
	s.mu.Unlock()

	metrics.RecordFlush(len(batch))
	s.logger.Debugf("Flushed %d snapshots", len(batch))
	return nil
}

// Discard withdraws a pending write and rolls the monitor's ordering
// watermark back to the newest write that remains.
func (s *SnapshotStore) Discard(snapshotID string) bool {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	idx := -1
	for i, p := range s.pending {
		if p.ID == snapshotID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	monitorID := s.pending[idx].MonitorID
	s.pending = append(s.pending[:idx:idx], s.pending[idx+1:]...)

	var newest time.Time
	for _, p := range s.pending {
		if p.MonitorID == monitorID && p.Timestamp.After(newest) {
			newest = p.Timestamp
		}
	}
	if newest.IsZero() {
		// Reseeded from storage on the next write
		delete(s.lastTS, monitorID)
	} else {
		s.lastTS[monitorID] = newest
	}
	s.mu.Unlock()

	s.cache.Purge()
	s.logger.WithFields(map[string]interface{}{
		"monitor_id":  monitorID,
		"snapshot_id": snapshotID,
	}).Warn("Discarded pending snapshot")
	return true
}

// Pending returns the number of queued writes
func (s *SnapshotStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Latest returns the newest snapshot for a monitor, or nil
func (s *SnapshotStore) Latest(ctx context.Context, monitorID string) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	var queued *snapshot.Snapshot
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].MonitorID == monitorID {
			queued = s.pending[i]
			break
		}
	}
	s.mu.Unlock()

	if queued != nil {
		return s.decode(queued)
	}

	latest, err := s.repo.Latest(ctx, monitorID)
	if err != nil {
		return nil, errors.StorageError("Failed to read latest snapshot", err)
	}
	if latest == nil {
		return nil, nil
	}
	return s.decode(latest)
}

// Range returns snapshots with start <= ts < end in ascending order.
// Results may be shared with the cache and must not be modified.
func (s *SnapshotStore) Range(ctx context.Context, monitorID string, start, end time.Time, limit int) ([]*snapshot.Snapshot, error) {
	if !end.After(start) {
		return []*snapshot.Snapshot{}, nil
	}

	key := fmt.Sprintf("range|%s|%d|%d|%d|%d", monitorID, start.UnixNano(), end.UnixNano(), limit, s.version(monitorID))
	if cached, ok := s.cache.Get(key); ok {
		metrics.RecordCacheLookup(true)
		return cached, nil
	}
	metrics.RecordCacheLookup(false)

	// Pending first: a concurrent flush then shows up in the stored read
	queued := s.pendingFor(monitorID, func(ts time.Time) bool {
		return !ts.Before(start) && ts.Before(end)
	})
	stored, err := s.repo.Range(ctx, monitorID, start, end, limit)
	if err != nil {
		return nil, errors.StorageError("Failed to read snapshot range", err)
	}

	merged := mergeQueued(stored, queued)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	decoded, err := s.decodeAll(merged)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, decoded)
	return decoded, nil
}

// Recent returns up to n snapshots strictly before the given time, ascending.
// Results may be shared with the cache and must not be modified.
func (s *SnapshotStore) Recent(ctx context.Context, monitorID string, before time.Time, n int) ([]*snapshot.Snapshot, error) {
	if n <= 0 {
		return []*snapshot.Snapshot{}, nil
	}

	key := fmt.Sprintf("recent|%s|%d|%d|%d", monitorID, before.UnixNano(), n, s.version(monitorID))
	if cached, ok := s.cache.Get(key); ok {
		metrics.RecordCacheLookup(true)
		return cached, nil
	}
	metrics.RecordCacheLookup(false)

	queued := s.pendingFor(monitorID, func(ts time.Time) bool {
		return ts.Before(before)
	})
	stored, err := s.repo.Recent(ctx, monitorID, before, n)
	if err != nil {
		return nil, errors.StorageError("Failed to read recent snapshots", err)
	}

	merged := mergeQueued(stored, queued)
	if len(merged) > n {
		merged = merged[len(merged)-n:]
	}

	decoded, err := s.decodeAll(merged)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, decoded)
	return decoded, nil
}

// Cleanup removes snapshots older than retentionDays. The monitor's newest
// snapshot is always kept. A dry run only counts.
func (s *SnapshotStore) Cleanup(ctx context.Context, monitorID string, retentionDays int, dryRun bool) (int, error) {
	if retentionDays < 1 {
		return 0, errors.ValidationError("Retention must be at least one day", map[string]interface{}{
			"retention_days": retentionDays,
		})
	}

	cutoff := s.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	if dryRun {
		count, err := s.repo.CountExpired(ctx, monitorID, cutoff)
		if err != nil {
			return 0, errors.StorageError("Failed to count expired snapshots", err)
		}
		return count, nil
	}

	if s.archiver != nil {
		expired, err := s.repo.ListExpired(ctx, monitorID, cutoff)
		if err != nil {
			return 0, errors.StorageError("Failed to list expired snapshots", err)
		}
		if len(expired) == 0 {
			return 0, nil
		}

		decoded, err := s.decodeAll(expired)
		if err != nil {
			return 0, err
		}
		if err := s.archiver.Archive(ctx, monitorID, decoded); err != nil {
			return 0, errors.StorageError("Failed to archive expired snapshots", err)
		}

		// Only delete what was archived
		if last := expired[len(expired)-1].Timestamp.Add(time.Nanosecond); last.Before(cutoff) {
			cutoff = last
		}
	}

	deleted, err := s.repo.DeleteExpired(ctx, monitorID, cutoff)
	if err != nil {
		return 0, errors.StorageError("Failed to delete expired snapshots", err)
	}

	metrics.RecordRetentionDeleted(deleted)
	s.logger.WithFields(map[string]interface{}{
		"monitor_id":     monitorID,
		"retention_days": retentionDays,
		"deleted":        deleted,
	}).Info("Snapshot retention cleanup completed")

	return deleted, nil
}

// MonitorIDs lists monitors that have persisted snapshots
func (s *SnapshotStore) MonitorIDs(ctx context.Context) ([]string, error) {
	return s.repo.MonitorIDs(ctx)
}

// Start runs the background flusher until ctx is cancelled or Close is called
func (s *SnapshotStore) Start(ctx context.Context) {
	if s.cfg.FlushInterval <= 0 {
		return
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Flush(ctx); err != nil {
					s.logger.ErrorWithErr(err, "Background snapshot flush failed")
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the background flusher and flushes what is left
func (s *SnapshotStore) Close(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return s.Flush(ctx)
}

// version is the monitor's last accepted timestamp, used to key cache
// entries so newer writes miss.
func (s *SnapshotStore) version(monitorID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastTS[monitorID]
	if !ok {
		return 0
	}
	return ts.UnixNano()
}

func (s *SnapshotStore) pendingFor(monitorID string, keep func(time.Time) bool) []*snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*snapshot.Snapshot
	for _, p := range s.pending {
		if p.MonitorID == monitorID && keep(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out
}

// mergeQueued appends pending writes that are not yet part of the stored
// result. Pending writes are always newer than stored ones.
func mergeQueued(stored, queued []*snapshot.Snapshot) []*snapshot.Snapshot {
	if len(queued) == 0 {
		return stored
	}
	seen := make(map[string]bool, len(stored))
	for _, st := range stored {
		seen[st.ID] = true
	}
	for _, q := range queued {
		if !seen[q.ID] {
			stored = append(stored, q)
		}
	}
	return stored
}

func (s *SnapshotStore) decode(record *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	payload, err := s.codec.Decode(record.Data, record.Compressed)
	if err != nil {
		return nil, errors.StorageError(fmt.Sprintf("Snapshot %s is unreadable", record.ID), err)
	}
	out := *record
	out.Payload = payload
	return &out, nil
}

func (s *SnapshotStore) decodeAll(records []*snapshot.Snapshot) ([]*snapshot.Snapshot, error) {
	out := make([]*snapshot.Snapshot, 0, len(records))
	for _, r := range records {
		d, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
