package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
)

type AggregationRepository struct {
	db *DB
}

func NewAggregationRepository(db *DB) aggregation.Repository {
	return &AggregationRepository{db: db}
}

const aggregationColumns = `monitor_id, period_type, period_start, period_end, snapshot_count, metrics, significant_change`

func (r *AggregationRepository) Upsert(ctx context.Context, a *aggregation.Aggregation) error {
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return errors.Internal("Failed to encode aggregation metrics", err)
	}

	query := `
		INSERT INTO aggregations (` + aggregationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (monitor_id, period_type, period_start) DO UPDATE SET
			period_end = excluded.period_end,
			snapshot_count = excluded.snapshot_count,
			metrics = excluded.metrics,
			significant_change = excluded.significant_change
	`
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query),
		a.MonitorID, a.PeriodType, toNanos(a.PeriodStart), toNanos(a.PeriodEnd),
		a.SnapshotCount, string(metrics), a.SignificantChange,
	)
	if err != nil {
		return errors.StorageError("Failed to upsert aggregation", err)
	}
	return nil
}

func (r *AggregationRepository) Get(ctx context.Context, monitorID, periodType string, periodStart time.Time) (*aggregation.Aggregation, error) {
	query := `SELECT ` + aggregationColumns + ` FROM aggregations
		WHERE monitor_id = ? AND period_type = ? AND period_start = ?`

	a, err := scanAggregation(r.db.QueryRowContext(ctx, r.db.Rebind(query), monitorID, periodType, toNanos(periodStart)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("Failed to get aggregation", err)
	}
	return a, nil
}

func (r *AggregationRepository) ListByMonitor(ctx context.Context, monitorID, periodType string, limit int) ([]*aggregation.Aggregation, error) {
	query := `SELECT ` + aggregationColumns + ` FROM aggregations
		WHERE monitor_id = ? AND period_type = ? ORDER BY period_start DESC`
	args := []interface{}{monitorID, periodType}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.StorageError("Failed to list aggregations", err)
	}
	defer rows.Close()

	var out []*aggregation.Aggregation
	for rows.Next() {
		a, err := scanAggregation(rows)
		if err != nil {
			return nil, errors.StorageError("Failed to scan aggregation", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAggregation(row rowScanner) (*aggregation.Aggregation, error) {
	var a aggregation.Aggregation
	var start, end int64
	var metrics string
	err := row.Scan(&a.MonitorID, &a.PeriodType, &start, &end, &a.SnapshotCount, &metrics, &a.SignificantChange)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
		return nil, err
	}
	a.PeriodStart = fromNanos(start)
	a.PeriodEnd = fromNanos(end)
	return &a, nil
}
