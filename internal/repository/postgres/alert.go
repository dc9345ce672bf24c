package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
)

type AlertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) alert.Repository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, monitor_id, title, summary, confidence, changes, anomalies, degraded_reasons,
	priority, urgency, dedup_hash, created_at, is_read, user_feedback, feedback_comment`

func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	changes, err := json.Marshal(nonNil(a.Changes))
	if err != nil {
		return errors.Internal("Failed to encode alert changes", err)
	}
	anomalies, err := json.Marshal(nonNil(a.Anomalies))
	if err != nil {
		return errors.Internal("Failed to encode alert anomalies", err)
	}
	reasons, err := marshalList(a.DegradedReasons)
	if err != nil {
		return errors.Internal("Failed to encode degraded reasons", err)
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query),
		a.ID, a.MonitorID, a.Title, a.Summary, a.Confidence, string(changes), string(anomalies), reasons,
		a.Priority, a.Urgency, a.DedupHash, toNanos(a.CreatedAt), a.Read, a.UserFeedback, a.FeedbackComment,
	)
	if err != nil {
		return errors.DatabaseError("Failed to create alert", err)
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	a, err := scanAlert(r.db.QueryRowContext(ctx, r.db.Rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Alert")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get alert", err)
	}
	return a, nil
}

func (r *AlertRepository) ListByMonitor(ctx context.Context, monitorID string, filter alert.Filter, limit, offset int) ([]*alert.Alert, int64, error) {
	where := []string{"monitor_id = ?"}
	args := []interface{}{monitorID}

	if filter.Urgency != "" {
		where = append(where, "urgency = ?")
		args = append(args, filter.Urgency)
	}
	if filter.UnreadOnly {
		where = append(where, "is_read = ?")
		args = append(args, false)
	}
	if filter.Since != nil {
		where = append(where, "created_at > ?")
		args = append(args, toNanos(*filter.Since))
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts WHERE %s", whereClause)
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count alerts", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE %s ORDER BY created_at DESC, id`, alertColumns, whereClause)
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	alerts, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list alerts", err)
	}
	return alerts, total, nil
}

func (r *AlertRepository) ListSince(ctx context.Context, monitorID string, since time.Time) ([]*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE monitor_id = ? AND created_at > ? ORDER BY created_at DESC`

	alerts, err := r.query(ctx, query, monitorID, toNanos(since))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list recent alerts", err)
	}
	return alerts, nil
}

func (r *AlertRepository) MarkRead(ctx context.Context, id string) error {
	return r.exec(ctx, "UPDATE alerts SET is_read = ? WHERE id = ?", true, id)
}

func (r *AlertRepository) SetFeedback(ctx context.Context, id, feedback, comment string) error {
	return r.exec(ctx, "UPDATE alerts SET user_feedback = ?, feedback_comment = ? WHERE id = ?", feedback, comment, id)
}

func (r *AlertRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return errors.DatabaseError("Failed to update alert", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to get affected rows", err)
	}
	if rows == 0 {
		return errors.NotFound("Alert")
	}
	return nil
}

func (r *AlertRepository) query(ctx context.Context, query string, args ...interface{}) ([]*alert.Alert, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]*alert.Alert, 0, 16)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row rowScanner) (*alert.Alert, error) {
	var a alert.Alert
	var changes, anomalies, reasons string
	var createdAt int64

	err := row.Scan(
		&a.ID, &a.MonitorID, &a.Title, &a.Summary, &a.Confidence, &changes, &anomalies, &reasons,
		&a.Priority, &a.Urgency, &a.DedupHash, &createdAt, &a.Read, &a.UserFeedback, &a.FeedbackComment,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(changes), &a.Changes); err != nil {
		return nil, fmt.Errorf("decode changes: %w", err)
	}
	if err := json.Unmarshal([]byte(anomalies), &a.Anomalies); err != nil {
		return nil, fmt.Errorf("decode anomalies: %w", err)
	}
	if err := json.Unmarshal([]byte(reasons), &a.DegradedReasons); err != nil {
		return nil, fmt.Errorf("decode degraded reasons: %w", err)
	}
	a.CreatedAt = fromNanos(createdAt)
	return &a, nil
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
