package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/metrics"
	"github.com/pratik-mahalle/changewatch/internal/pkg/validator"
)

// MonitorService implements monitor.Service and enforces the lifecycle
// state machine.
type MonitorService struct {
	repo      monitor.Repository
	validator *validator.Validator
	logger    *logger.Logger
	now       func() time.Time
}

// NewMonitorService creates a new monitor service
func NewMonitorService(repo monitor.Repository, log *logger.Logger) monitor.Service {
	return &MonitorService{
		repo:      repo,
		validator: validator.New(),
		logger:    log,
		now:       time.Now,
	}
}

// Create validates the configuration and stores a new active monitor that
// is due immediately.
func (s *MonitorService) Create(ctx context.Context, userID string, input monitor.CreateInput) (*monitor.Monitor, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	threshold := monitor.DefaultAlertThreshold
	if input.AlertThreshold != nil {
		threshold = *input.AlertThreshold
	}

	m := &monitor.Monitor{
		ID:                   uuid.New().String(),
		UserID:               userID,
		Entity:               strings.TrimSpace(input.Entity),
		Category:             strings.TrimSpace(input.Category),
		Frequency:            input.Frequency,
		Frameworks:           nonEmpty(input.Frameworks),
		AlertThreshold:       threshold,
		NotificationChannels: nonEmpty(input.NotificationChannels),
		Status:               monitor.StatusActive,
		NextCheck:            &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, m); err != nil {
		s.logger.ErrorWithErr(err, "Failed to create monitor")
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"monitor_id": m.ID,
		"user_id":    userID,
		"entity":     m.Entity,
		"frequency":  m.Frequency,
	}).Info("Monitor created")

	return m, nil
}

// Get retrieves a monitor owned by the user. Deleted monitors are not found.
func (s *MonitorService) Get(ctx context.Context, userID, id string) (*monitor.Monitor, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID || m.Status == monitor.StatusDeleted {
		return nil, errors.NotFound("Monitor")
	}
	return m, nil
}

// List retrieves the user's monitors with pagination
func (s *MonitorService) List(ctx context.Context, userID string, filter monitor.Filter, limit, offset int) ([]*monitor.Monitor, int64, error) {
	filter.UserID = userID
	return s.repo.List(ctx, filter, limit, offset)
}

// UpdateConfig changes the editable configuration of a non-deleted monitor.
// The write only lands while the monitor keeps the status it was read with,
// so a concurrent lifecycle change is retried once against the fresh row.
func (s *MonitorService) UpdateConfig(ctx context.Context, userID, id string, update monitor.Update) (*monitor.Monitor, error) {
	if err := s.validate(update); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		m, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}

		reschedule := s.applyUpdate(m, update)
		err = s.repo.UpdateConfig(ctx, m, reschedule)
		if errors.IsCode(err, errors.ErrCodeConflict) {
			continue
		}
		if err != nil {
			s.logger.ErrorWithErr(err, "Failed to update monitor")
			return nil, err
		}

		s.logger.WithFields(map[string]interface{}{
			"monitor_id": id,
			"user_id":    userID,
		}).Info("Monitor updated")
		return m, nil
	}
	return nil, errors.Conflict("Monitor changed concurrently, retry the update")
}

// applyUpdate copies the set fields onto m and reports whether the schedule moved
func (s *MonitorService) applyUpdate(m *monitor.Monitor, update monitor.Update) bool {
	reschedule := false
	if update.Frequency != nil && *update.Frequency != m.Frequency {
		m.Frequency = *update.Frequency
		next := s.now().UTC()
		if m.LastCheck != nil {
			next = m.LastCheck.Add(monitor.Interval(m.Frequency))
		}
		m.NextCheck = &next
		reschedule = true
	}
	if update.AlertThreshold != nil {
		m.AlertThreshold = *update.AlertThreshold
	}
	if update.Category != nil {
		m.Category = strings.TrimSpace(*update.Category)
	}
	if update.Frameworks != nil {
		m.Frameworks = nonEmpty(update.Frameworks)
	}
	if update.NotificationChannels != nil {
		m.NotificationChannels = nonEmpty(update.NotificationChannels)
	}
	m.UpdatedAt = s.now().UTC()
	return reschedule
}

// Pause moves an active monitor to paused
func (s *MonitorService) Pause(ctx context.Context, userID, id string) (*monitor.Monitor, error) {
	return s.transition(ctx, userID, id, "pause", monitor.StatusPaused, monitor.StatusActive)
}

// Resume reactivates a paused monitor or resets an errored one
func (s *MonitorService) Resume(ctx context.Context, userID, id string) (*monitor.Monitor, error) {
	return s.transition(ctx, userID, id, "resume", monitor.StatusActive, monitor.StatusPaused, monitor.StatusError)
}

// Delete soft-deletes a monitor. Deletion is terminal.
func (s *MonitorService) Delete(ctx context.Context, userID, id string) error {
	_, err := s.transition(ctx, userID, id, "delete", monitor.StatusDeleted,
		monitor.StatusActive, monitor.StatusPaused, monitor.StatusError)
	return err
}

// transition applies a conditional status change. A concurrent change by
// the scheduler makes the first attempt miss, so it is retried once against
// the fresh status.
func (s *MonitorService) transition(ctx context.Context, userID, id, action, to string, from ...string) (*monitor.Monitor, error) {
	for attempt := 0; attempt < 2; attempt++ {
		m, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if !contains(from, m.Status) {
			return nil, errors.InvalidState(m.Status, action)
		}

		ok, err := s.repo.TransitionStatus(ctx, id, m.Status, to)
		if err != nil {
			s.logger.ErrorWithErr(err, "Failed to change monitor status")
			return nil, err
		}
		if !ok {
			continue
		}

		metrics.RecordStateTransition(to)
		s.logger.WithFields(map[string]interface{}{
			"monitor_id": id,
			"user_id":    userID,
			"from":       m.Status,
			"to":         to,
		}).Info("Monitor status changed")

		if to == monitor.StatusDeleted {
			m.Status = to
			return m, nil
		}
		return s.repo.GetByID(ctx, id)
	}

	return nil, errors.Conflict("Monitor status changed concurrently, retry the request")
}

// validate maps struct validation failures to errors. A bad channel is a
// configuration error, anything else a validation error.
func (s *MonitorService) validate(input interface{}) error {
	verrs := s.validator.Validate(input)
	if len(verrs) == 0 {
		return nil
	}
	if validator.HasTag(verrs, "channel") {
		return errors.ConfigurationError("Invalid notification channel", verrs)
	}
	return errors.ValidationError("Invalid monitor configuration", verrs)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
