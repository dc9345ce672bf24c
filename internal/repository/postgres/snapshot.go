package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
)

type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) snapshot.Repository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, monitor_id, ts, data, compressed, compression_ratio, original_size, stored_size`

// expiredClause matches snapshots older than the cutoff while always
// keeping the monitor's newest snapshot.
const expiredClause = `monitor_id = ? AND ts < ?
	AND ts < (SELECT MAX(ts) FROM snapshots WHERE monitor_id = ?)`

func (r *SnapshotRepository) InsertBatch(ctx context.Context, snapshots []*snapshot.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError("Failed to begin snapshot batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`
		INSERT INTO snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return errors.StorageError("Failed to prepare snapshot insert", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		_, err := stmt.ExecContext(ctx,
			s.ID, s.MonitorID, toNanos(s.Timestamp), s.Data, s.Compressed,
			s.CompressionRatio, s.OriginalSize, s.StoredSize,
		)
		if err != nil {
			return errors.StorageError("Failed to insert snapshot", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("Failed to commit snapshot batch", err)
	}
	return nil
}

func (r *SnapshotRepository) Latest(ctx context.Context, monitorID string) (*snapshot.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE monitor_id = ? ORDER BY ts DESC LIMIT 1`

	s, err := scanSnapshot(r.db.QueryRowContext(ctx, r.db.Rebind(query), monitorID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("Failed to get latest snapshot", err)
	}
	return s, nil
}

func (r *SnapshotRepository) Range(ctx context.Context, monitorID string, start, end time.Time, limit int) ([]*snapshot.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots
		WHERE monitor_id = ? AND ts >= ? AND ts < ? ORDER BY ts ASC`
	args := []interface{}{monitorID, toNanos(start), toNanos(end)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	snapshots, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("Failed to read snapshot range", err)
	}
	return snapshots, nil
}

func (r *SnapshotRepository) Recent(ctx context.Context, monitorID string, before time.Time, n int) ([]*snapshot.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots
		WHERE monitor_id = ? AND ts < ? ORDER BY ts DESC LIMIT ?`

	snapshots, err := r.query(ctx, query, monitorID, toNanos(before), n)
	if err != nil {
		return nil, errors.StorageError("Failed to read recent snapshots", err)
	}

	// Newest first from the query, callers expect ascending
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}
	return snapshots, nil
}

func (r *SnapshotRepository) CountExpired(ctx context.Context, monitorID string, cutoff time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM snapshots WHERE ` + expiredClause
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), monitorID, toNanos(cutoff), monitorID).Scan(&count)
	if err != nil {
		return 0, errors.StorageError("Failed to count expired snapshots", err)
	}
	return count, nil
}

func (r *SnapshotRepository) ListExpired(ctx context.Context, monitorID string, cutoff time.Time) ([]*snapshot.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE ` + expiredClause + ` ORDER BY ts ASC`

	snapshots, err := r.query(ctx, query, monitorID, toNanos(cutoff), monitorID)
	if err != nil {
		return nil, errors.StorageError("Failed to list expired snapshots", err)
	}
	return snapshots, nil
}

func (r *SnapshotRepository) DeleteExpired(ctx context.Context, monitorID string, cutoff time.Time) (int, error) {
	query := `DELETE FROM snapshots WHERE ` + expiredClause

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), monitorID, toNanos(cutoff), monitorID)
	if err != nil {
		return 0, errors.StorageError("Failed to delete expired snapshots", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.StorageError("Failed to get affected rows", err)
	}
	return int(rows), nil
}

func (r *SnapshotRepository) MonitorIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT monitor_id FROM snapshots ORDER BY monitor_id")
	if err != nil {
		return nil, errors.StorageError("Failed to list snapshot monitors", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StorageError("Failed to scan monitor id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SnapshotRepository) query(ctx context.Context, query string, args ...interface{}) ([]*snapshot.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]*snapshot.Snapshot, 0, 32)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(row rowScanner) (*snapshot.Snapshot, error) {
	var s snapshot.Snapshot
	var ts int64
	err := row.Scan(&s.ID, &s.MonitorID, &ts, &s.Data, &s.Compressed,
		&s.CompressionRatio, &s.OriginalSize, &s.StoredSize)
	if err != nil {
		return nil, err
	}
	s.Timestamp = fromNanos(ts)
	return &s, nil
}
