package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
)

type MonitorRepository struct {
	db *DB
}

func NewMonitorRepository(db *DB) monitor.Repository {
	return &MonitorRepository{db: db}
}

const monitorColumns = `id, user_id, entity, category, frequency, frameworks, alert_threshold,
	notification_channels, status, last_check, next_check, consecutive_error_count, last_error,
	created_at, updated_at`

func (r *MonitorRepository) Create(ctx context.Context, m *monitor.Monitor) error {
	frameworks, channels, err := encodeMonitorLists(m)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO monitors (` + monitorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query),
		m.ID, m.UserID, m.Entity, m.Category, m.Frequency, frameworks, m.AlertThreshold,
		channels, m.Status, nullableNanos(m.LastCheck), nullableNanos(m.NextCheck),
		m.ConsecutiveErrorCount, m.LastError, toNanos(m.CreatedAt), toNanos(m.UpdatedAt),
	)
	if err != nil {
		return errors.DatabaseError("Failed to create monitor", err)
	}
	return nil
}

func (r *MonitorRepository) GetByID(ctx context.Context, id string) (*monitor.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE id = ?`

	m, err := scanMonitor(r.db.QueryRowContext(ctx, r.db.Rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Monitor")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get monitor", err)
	}
	return m, nil
}

func (r *MonitorRepository) UpdateConfig(ctx context.Context, m *monitor.Monitor, reschedule bool) error {
	frameworks, channels, err := encodeMonitorLists(m)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	set := `category = ?, frequency = ?, frameworks = ?, alert_threshold = ?,
		notification_channels = ?, updated_at = ?`
	args := []interface{}{
		m.Category, m.Frequency, frameworks, m.AlertThreshold, channels, toNanos(m.UpdatedAt),
	}
	if reschedule {
		set += `, next_check = ?`
		args = append(args, nullableNanos(m.NextCheck))
	}
	args = append(args, m.ID, m.Status)

	query := `UPDATE monitors SET ` + set + ` WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return errors.DatabaseError("Failed to update monitor", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to get affected rows", err)
	}
	if rows > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, m.ID); err != nil {
		return err
	}
	return errors.Conflict("Monitor status changed during update")
}

func (r *MonitorRepository) List(ctx context.Context, filter monitor.Filter, limit, offset int) ([]*monitor.Monitor, int64, error) {
	where := []string{"1 = 1"}
	args := []interface{}{}

	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	} else if !filter.IncludeDeleted {
		where = append(where, "status <> ?")
		args = append(args, monitor.StatusDeleted)
	}
	if filter.Entity != "" {
		where = append(where, "entity = ?")
		args = append(args, filter.Entity)
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM monitors WHERE %s", whereClause)
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count monitors", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM monitors WHERE %s ORDER BY created_at DESC, id`, monitorColumns, whereClause)
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	monitors, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list monitors", err)
	}
	return monitors, total, nil
}

func (r *MonitorRepository) ListDue(ctx context.Context, now time.Time) ([]*monitor.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors
		WHERE status = ? AND (next_check IS NULL OR next_check <= ?)
		ORDER BY next_check`

	monitors, err := r.query(ctx, query, monitor.StatusActive, toNanos(now))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list due monitors", err)
	}
	return monitors, nil
}

func (r *MonitorRepository) RecordSuccess(ctx context.Context, id string, checkedAt, nextCheck time.Time) error {
	query := `
		UPDATE monitors SET last_check = ?, next_check = ?, consecutive_error_count = 0,
			last_error = '', updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		toNanos(checkedAt), toNanos(nextCheck), toNanos(time.Now()), id,
	)
	if err != nil {
		return errors.DatabaseError("Failed to record check success", err)
	}
	return nil
}

func (r *MonitorRepository) RecordFailure(ctx context.Context, id string, reason string, nextCheck time.Time) (int, error) {
	query := `
		UPDATE monitors SET consecutive_error_count = consecutive_error_count + 1,
			last_error = ?, next_check = ?, updated_at = ?
		WHERE id = ?
		RETURNING consecutive_error_count
	`
	var count int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query),
		reason, toNanos(nextCheck), toNanos(time.Now()), id,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, errors.NotFound("Monitor")
	}
	if err != nil {
		return 0, errors.DatabaseError("Failed to record check failure", err)
	}
	return count, nil
}

func (r *MonitorRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	query := `UPDATE monitors SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	if to == monitor.StatusActive {
		// A reactivated monitor starts with a clean error history
		query = `UPDATE monitors SET status = ?, updated_at = ?, consecutive_error_count = 0, last_error = ''
			WHERE id = ? AND status = ?`
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), to, toNanos(time.Now()), id, from)
	if err != nil {
		return false, errors.DatabaseError("Failed to change monitor status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.DatabaseError("Failed to get affected rows", err)
	}
	return rows > 0, nil
}

func (r *MonitorRepository) query(ctx context.Context, query string, args ...interface{}) ([]*monitor.Monitor, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	monitors := make([]*monitor.Monitor, 0, 16)
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMonitor(row rowScanner) (*monitor.Monitor, error) {
	var m monitor.Monitor
	var frameworks, channels string
	var lastCheck, nextCheck sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&m.ID, &m.UserID, &m.Entity, &m.Category, &m.Frequency, &frameworks, &m.AlertThreshold,
		&channels, &m.Status, &lastCheck, &nextCheck, &m.ConsecutiveErrorCount, &m.LastError,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(frameworks), &m.Frameworks); err != nil {
		return nil, fmt.Errorf("decode frameworks: %w", err)
	}
	if err := json.Unmarshal([]byte(channels), &m.NotificationChannels); err != nil {
		return nil, fmt.Errorf("decode notification channels: %w", err)
	}
	m.LastCheck = timePtr(lastCheck)
	m.NextCheck = timePtr(nextCheck)
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	return &m, nil
}

func encodeMonitorLists(m *monitor.Monitor) (string, string, error) {
	frameworks, err := marshalList(m.Frameworks)
	if err != nil {
		return "", "", errors.Internal("Failed to encode frameworks", err)
	}
	channels, err := marshalList(m.NotificationChannels)
	if err != nil {
		return "", "", errors.Internal("Failed to encode notification channels", err)
	}
	return frameworks, channels, nil
}

func marshalList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	return string(data), err
}
