package services

import (
	"context"

	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

// AlertService implements alert.Service
type AlertService struct {
	repo     alert.Repository
	monitors monitor.Repository
	logger   *logger.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(repo alert.Repository, monitors monitor.Repository, log *logger.Logger) alert.Service {
	return &AlertService{
		repo:     repo,
		monitors: monitors,
		logger:   log,
	}
}

// ListByMonitor retrieves a monitor's alerts with filters and pagination
func (s *AlertService) ListByMonitor(ctx context.Context, userID, monitorID string, filter alert.Filter, limit, offset int) ([]*alert.Alert, int64, error) {
	if _, err := s.ownedMonitor(ctx, userID, monitorID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByMonitor(ctx, monitorID, filter, limit, offset)
}

// Get retrieves an alert by ID
func (s *AlertService) Get(ctx context.Context, userID, id string) (*alert.Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedMonitor(ctx, userID, a.MonitorID); err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.NotFound("Alert")
		}
		return nil, err
	}
	return a, nil
}

// MarkRead marks an alert as read
func (s *AlertService) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}

	if err := s.repo.MarkRead(ctx, id); err != nil {
		s.logger.ErrorWithErr(err, "Failed to mark alert read")
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": id,
		"user_id":  userID,
	}).Debug("Alert marked read")

	return nil
}

// SubmitFeedback records whether the alert was useful
func (s *AlertService) SubmitFeedback(ctx context.Context, userID, id, feedback, comment string) error {
	if !alert.IsValidFeedback(feedback) {
		return errors.ValidationError("Invalid feedback", map[string]interface{}{
			"feedback": feedback,
			"allowed":  []string{alert.FeedbackUseful, alert.FeedbackNotUseful, alert.FeedbackIncorrect},
		})
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}

	if err := s.repo.SetFeedback(ctx, id, feedback, comment); err != nil {
		s.logger.ErrorWithErr(err, "Failed to store alert feedback")
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": id,
		"user_id":  userID,
		"feedback": feedback,
	}).Info("Alert feedback recorded")

	return nil
}

func (s *AlertService) ownedMonitor(ctx context.Context, userID, monitorID string) (*monitor.Monitor, error) {
	m, err := s.monitors.GetByID(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, errors.NotFound("Monitor")
	}
	return m, nil
}
