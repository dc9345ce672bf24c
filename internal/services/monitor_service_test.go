package services

import (
	"context"
	"testing"

	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/testutil"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestMonitorService_Create(t *testing.T) {
	mockRepo := testutil.NewMockMonitorRepository()
	service := NewMonitorService(mockRepo, testLogger())
	ctx := context.Background()

	tests := []struct {
		name     string
		input    monitor.CreateInput
		wantCode string
	}{
		{
			name:  "minimal",
			input: monitor.CreateInput{Entity: "Acme Corp", Frequency: monitor.FrequencyDaily},
		},
		{
			name: "full configuration",
			input: monitor.CreateInput{
				Entity:               "Globex",
				Category:             "competitor",
				Frequency:            monitor.FrequencyHourly,
				Frameworks:           []string{"swot"},
				AlertThreshold:       floatPtr(0.5),
				NotificationChannels: []string{"slack", "webhook:https://hooks.example.com/x", "nats:alerts.globex", "log"},
			},
		},
		{
			name:     "missing entity",
			input:    monitor.CreateInput{Frequency: monitor.FrequencyDaily},
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "bad frequency",
			input:    monitor.CreateInput{Entity: "Acme", Frequency: "fortnightly"},
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "threshold above one",
			input:    monitor.CreateInput{Entity: "Acme", Frequency: monitor.FrequencyDaily, AlertThreshold: floatPtr(1.5)},
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "unknown channel",
			input:    monitor.CreateInput{Entity: "Acme", Frequency: monitor.FrequencyDaily, NotificationChannels: []string{"carrier-pigeon"}},
			wantCode: errors.ErrCodeConfiguration,
		},
		{
			name:     "webhook without url",
			input:    monitor.CreateInput{Entity: "Acme", Frequency: monitor.FrequencyDaily, NotificationChannels: []string{"webhook:ftp://x"}},
			wantCode: errors.ErrCodeConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := service.Create(ctx, "alice", tt.input)
			if tt.wantCode != "" {
				if !errors.IsCode(err, tt.wantCode) {
					t.Errorf("Create() error = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if m.ID == "" || m.Status != monitor.StatusActive || m.UserID != "alice" {
				t.Errorf("Create() = %+v", m)
			}
			if m.NextCheck == nil {
				t.Error("new monitor has no next check")
			}
			if tt.input.AlertThreshold == nil && m.AlertThreshold != monitor.DefaultAlertThreshold {
				t.Errorf("AlertThreshold = %v, want default", m.AlertThreshold)
			}
		})
	}
}

func TestMonitorService_StateMachine(t *testing.T) {
	mockRepo := testutil.NewMockMonitorRepository()
	service := NewMonitorService(mockRepo, testLogger())
	ctx := context.Background()

	m, err := service.Create(ctx, "alice", monitor.CreateInput{Entity: "Acme", Frequency: monitor.FrequencyDaily})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	steps := []struct {
		name       string
		action     func() (*monitor.Monitor, error)
		wantStatus string
		wantCode   string
	}{
		{name: "resume active", action: func() (*monitor.Monitor, error) { return service.Resume(ctx, "alice", m.ID) }, wantCode: errors.ErrCodeInvalidState},
		{name: "pause", action: func() (*monitor.Monitor, error) { return service.Pause(ctx, "alice", m.ID) }, wantStatus: monitor.StatusPaused},
		{name: "pause again", action: func() (*monitor.Monitor, error) { return service.Pause(ctx, "alice", m.ID) }, wantCode: errors.ErrCodeInvalidState},
		{name: "resume", action: func() (*monitor.Monitor, error) { return service.Resume(ctx, "alice", m.ID) }, wantStatus: monitor.StatusActive},
		{name: "other user", action: func() (*monitor.Monitor, error) { return service.Pause(ctx, "bob", m.ID) }, wantCode: errors.ErrCodeNotFound},
	}

	for _, step := range steps {
		got, err := step.action()
		if step.wantCode != "" {
			if !errors.IsCode(err, step.wantCode) {
				t.Errorf("%s: error = %v, want %s", step.name, err, step.wantCode)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		if got.Status != step.wantStatus {
			t.Errorf("%s: status = %s, want %s", step.name, got.Status, step.wantStatus)
		}
	}

	if err := service.Delete(ctx, "alice", m.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := service.Resume(ctx, "alice", m.ID); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("Resume() after delete error = %v, want NOT_FOUND", err)
	}
	if err := service.Delete(ctx, "alice", m.ID); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("Delete() twice error = %v, want NOT_FOUND", err)
	}
}

func TestMonitorService_ResumeResetsErrors(t *testing.T) {
	mockRepo := testutil.NewMockMonitorRepository()
	service := NewMonitorService(mockRepo, testLogger())
	ctx := context.Background()

	mockRepo.Create(ctx, &monitor.Monitor{
		ID:                    "m1",
		UserID:                "alice",
		Entity:                "Acme",
		Frequency:             monitor.FrequencyDaily,
		Status:                monitor.StatusError,
		ConsecutiveErrorCount: 3,
		LastError:             "producer timed out",
	})

	got, err := service.Resume(ctx, "alice", "m1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got.Status != monitor.StatusActive || got.ConsecutiveErrorCount != 0 {
		t.Errorf("Resume() = status %s errors %d, want active with 0 errors", got.Status, got.ConsecutiveErrorCount)
	}
}

func TestMonitorService_UpdateConfig(t *testing.T) {
	mockRepo := testutil.NewMockMonitorRepository()
	service := NewMonitorService(mockRepo, testLogger())
	ctx := context.Background()

	m, _ := service.Create(ctx, "alice", monitor.CreateInput{Entity: "Acme", Frequency: monitor.FrequencyDaily})

	tests := []struct {
		name     string
		update   monitor.Update
		wantCode string
	}{
		{name: "frequency and threshold", update: monitor.Update{Frequency: strPtr(monitor.FrequencyWeekly), AlertThreshold: floatPtr(0.4)}},
		{name: "category", update: monitor.Update{Category: strPtr(" fintech ")}},
		{name: "bad frequency", update: monitor.Update{Frequency: strPtr("yearly")}, wantCode: errors.ErrCodeValidation},
		{name: "bad threshold", update: monitor.Update{AlertThreshold: floatPtr(-0.1)}, wantCode: errors.ErrCodeValidation},
		{name: "bad channel", update: monitor.Update{NotificationChannels: []string{"nats:"}}, wantCode: errors.ErrCodeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.UpdateConfig(ctx, "alice", m.ID, tt.update)
			if tt.wantCode == "" && err != nil {
				t.Errorf("UpdateConfig() error = %v", err)
			}
			if tt.wantCode != "" && !errors.IsCode(err, tt.wantCode) {
				t.Errorf("UpdateConfig() error = %v, want %s", err, tt.wantCode)
			}
		})
	}

	got, _ := service.Get(ctx, "alice", m.ID)
	if got.Frequency != monitor.FrequencyWeekly || got.AlertThreshold != 0.4 || got.Category != "fintech" {
		t.Errorf("after updates = %+v", got)
	}
}

// racingMonitorRepo applies a lifecycle change right after the first read,
// standing in for a concurrent request or the scheduler.
type racingMonitorRepo struct {
	monitor.Repository
	once func()
}

func (r *racingMonitorRepo) GetByID(ctx context.Context, id string) (*monitor.Monitor, error) {
	m, err := r.Repository.GetByID(ctx, id)
	if r.once != nil {
		f := r.once
		r.once = nil
		f()
	}
	return m, err
}

func TestMonitorService_UpdateConfigRacesLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		to         string
		wantCode   string
		wantStatus string
	}{
		{name: "concurrent delete stays deleted", to: monitor.StatusDeleted, wantCode: errors.ErrCodeNotFound, wantStatus: monitor.StatusDeleted},
		{name: "concurrent pause keeps pause", to: monitor.StatusPaused, wantStatus: monitor.StatusPaused},
		{name: "scheduler error transition kept", to: monitor.StatusError, wantStatus: monitor.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := testutil.NewMockMonitorRepository()
			repo := &racingMonitorRepo{Repository: mockRepo}
			service := NewMonitorService(repo, testLogger())
			ctx := context.Background()

			m, err := service.Create(ctx, "alice", monitor.CreateInput{Entity: "Acme", Frequency: monitor.FrequencyDaily})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			repo.once = func() {
				if ok, err := mockRepo.TransitionStatus(ctx, m.ID, monitor.StatusActive, tt.to); err != nil || !ok {
					t.Fatalf("TransitionStatus() = %v, %v", ok, err)
				}
			}

			_, err = service.UpdateConfig(ctx, "alice", m.ID, monitor.Update{AlertThreshold: floatPtr(0.2)})
			if tt.wantCode != "" {
				if !errors.IsCode(err, tt.wantCode) {
					t.Errorf("UpdateConfig() error = %v, want %s", err, tt.wantCode)
				}
			} else if err != nil {
				t.Errorf("UpdateConfig() error = %v", err)
			}

			got, _ := mockRepo.GetByID(ctx, m.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("status after racing update = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.wantCode == "" && got.AlertThreshold != 0.2 {
				t.Errorf("AlertThreshold = %v, want 0.2 applied on retry", got.AlertThreshold)
			}
		})
	}
}
