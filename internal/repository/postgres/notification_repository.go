package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/changewatch/internal/domain/notification"
)

// NotificationRepository implements notification.Repository for PostgreSQL/SQLite
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateLog records a delivery attempt
func (r *NotificationRepository) CreateLog(ctx context.Context, l *notification.Log) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_logs (id, alert_id, monitor_id, channel, status, attempts, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		l.ID, l.AlertID, l.MonitorID, l.Channel, string(l.Status), l.Attempts, l.ErrorMessage, toNanos(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

// ListLogsByAlert returns the delivery history of one alert
func (r *NotificationRepository) ListLogsByAlert(ctx context.Context, alertID string) ([]*notification.Log, error) {
	query := `
		SELECT id, alert_id, monitor_id, channel, status, attempts, error_message, created_at
		FROM notification_logs WHERE alert_id = ? ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()

	var logs []*notification.Log
	for rows.Next() {
		var l notification.Log
		var status string
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.AlertID, &l.MonitorID, &l.Channel, &status, &l.Attempts, &l.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		l.Status = notification.DeliveryStatus(status)
		l.CreatedAt = fromNanos(createdAt)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
