package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/domain/notification"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
)

// MockMonitorRepository is a mock implementation of monitor.Repository
type MockMonitorRepository struct {
	mu          sync.Mutex
	Monitors    map[string]*monitor.Monitor
	CreateError error
	GetError    error
	UpdateError error
}

func NewMockMonitorRepository() *MockMonitorRepository {
	return &MockMonitorRepository{
		Monitors: make(map[string]*monitor.Monitor),
	}
}

func (m *MockMonitorRepository) Create(ctx context.Context, mon *monitor.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	cp := *mon
	m.Monitors[mon.ID] = &cp
	return nil
}

func (m *MockMonitorRepository) GetByID(ctx context.Context, id string) (*monitor.Monitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	mon, ok := m.Monitors[id]
	if !ok {
		return nil, errors.NotFound("Monitor")
	}
	cp := *mon
	return &cp, nil
}

func (m *MockMonitorRepository) UpdateConfig(ctx context.Context, mon *monitor.Monitor, reschedule bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateError != nil {
		return m.UpdateError
	}
	stored, ok := m.Monitors[mon.ID]
	if !ok {
		return errors.NotFound("Monitor")
	}
	if stored.Status != mon.Status {
		return errors.Conflict("Monitor status changed during update")
	}
	stored.Category = mon.Category
	stored.Frequency = mon.Frequency
	stored.Frameworks = append([]string(nil), mon.Frameworks...)
	stored.AlertThreshold = mon.AlertThreshold
	stored.NotificationChannels = append([]string(nil), mon.NotificationChannels...)
	stored.UpdatedAt = mon.UpdatedAt
	if reschedule {
		stored.NextCheck = mon.NextCheck
	}
	return nil
}

func (m *MockMonitorRepository) List(ctx context.Context, filter monitor.Filter, limit, offset int) ([]*monitor.Monitor, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*monitor.Monitor
	for _, mon := range m.Monitors {
		if filter.UserID != "" && mon.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && mon.Status != filter.Status {
			continue
		}
		if filter.Status == "" && !filter.IncludeDeleted && mon.Status == monitor.StatusDeleted {
			continue
		}
		cp := *mon
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, int64(len(result)), nil
}

func (m *MockMonitorRepository) ListDue(ctx context.Context, now time.Time) ([]*monitor.Monitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*monitor.Monitor
	for _, mon := range m.Monitors {
		if mon.IsDue(now) {
			cp := *mon
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockMonitorRepository) RecordSuccess(ctx context.Context, id string, checkedAt, nextCheck time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.Monitors[id]
	if !ok {
		return errors.NotFound("Monitor")
	}
	mon.LastCheck = &checkedAt
	mon.NextCheck = &nextCheck
	mon.ConsecutiveErrorCount = 0
	mon.LastError = ""
	return nil
}

func (m *MockMonitorRepository) RecordFailure(ctx context.Context, id string, reason string, nextCheck time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.Monitors[id]
	if !ok {
		return 0, errors.NotFound("Monitor")
	}
	mon.ConsecutiveErrorCount++
	mon.LastError = reason
	mon.NextCheck = &nextCheck
	return mon.ConsecutiveErrorCount, nil
}

func (m *MockMonitorRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.Monitors[id]
	if !ok || mon.Status != from {
		return false, nil
	}
	mon.Status = to
	if to == monitor.StatusActive {
		mon.ConsecutiveErrorCount = 0
		mon.LastError = ""
	}
	return true, nil
}

// MockSnapshotRepository is a mock implementation of snapshot.Repository
type MockSnapshotRepository struct {
	mu          sync.Mutex
	Snapshots   map[string][]*snapshot.Snapshot
	InsertError error
	ReadError   error
	Batches     int
}

func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{
		Snapshots: make(map[string][]*snapshot.Snapshot),
	}
}

func (m *MockSnapshotRepository) InsertBatch(ctx context.Context, snapshots []*snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertError != nil {
		return m.InsertError
	}
	for _, s := range snapshots {
		existing := m.Snapshots[s.MonitorID]
		if n := len(existing); n > 0 && !s.Timestamp.After(existing[n-1].Timestamp) {
			return errors.StorageError("Failed to insert snapshot", fmt.Errorf("duplicate timestamp"))
		}
	}
	for _, s := range snapshots {
		cp := *s
		cp.Payload = nil
		m.Snapshots[s.MonitorID] = append(m.Snapshots[s.MonitorID], &cp)
	}
	m.Batches++
	return nil
}

func (m *MockSnapshotRepository) Latest(ctx context.Context, monitorID string) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	list := m.Snapshots[monitorID]
	if len(list) == 0 {
		return nil, nil
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (m *MockSnapshotRepository) Range(ctx context.Context, monitorID string, start, end time.Time, limit int) ([]*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	var result []*snapshot.Snapshot
	for _, s := range m.Snapshots[monitorID] {
		if s.Timestamp.Before(start) || !s.Timestamp.Before(end) {
			continue
		}
		cp := *s
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockSnapshotRepository) Recent(ctx context.Context, monitorID string, before time.Time, n int) ([]*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	var result []*snapshot.Snapshot
	for _, s := range m.Snapshots[monitorID] {
		if s.Timestamp.Before(before) {
			cp := *s
			result = append(result, &cp)
		}
	}
	if len(result) > n {
		result = result[len(result)-n:]
	}
	return result, nil
}

func (m *MockSnapshotRepository) expired(monitorID string, cutoff time.Time) []*snapshot.Snapshot {
	list := m.Snapshots[monitorID]
	if len(list) == 0 {
		return nil
	}
	var result []*snapshot.Snapshot
	for _, s := range list[:len(list)-1] {
		if s.Timestamp.Before(cutoff) {
			result = append(result, s)
		}
	}
	return result
}

func (m *MockSnapshotRepository) CountExpired(ctx context.Context, monitorID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expired(monitorID, cutoff)), nil
}

func (m *MockSnapshotRepository) ListExpired(ctx context.Context, monitorID string, cutoff time.Time) ([]*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expired(monitorID, cutoff), nil
}

func (m *MockSnapshotRepository) DeleteExpired(ctx context.Context, monitorID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doomed := m.expired(monitorID, cutoff)
	if len(doomed) == 0 {
		return 0, nil
	}
	drop := make(map[string]bool, len(doomed))
	for _, s := range doomed {
		drop[s.ID] = true
	}
	var kept []*snapshot.Snapshot
	for _, s := range m.Snapshots[monitorID] {
		if !drop[s.ID] {
			kept = append(kept, s)
		}
	}
	m.Snapshots[monitorID] = kept
	return len(doomed), nil
}

func (m *MockSnapshotRepository) MonitorIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.Snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of persisted snapshots for a monitor
func (m *MockSnapshotRepository) Count(monitorID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Snapshots[monitorID])
}

// MockAggregationRepository is a mock implementation of aggregation.Repository
type MockAggregationRepository struct {
	mu           sync.Mutex
	Aggregations map[string]*aggregation.Aggregation
	UpsertError  error
}

func NewMockAggregationRepository() *MockAggregationRepository {
	return &MockAggregationRepository{
		Aggregations: make(map[string]*aggregation.Aggregation),
	}
}

func aggregationKey(monitorID, periodType string, start time.Time) string {
	return fmt.Sprintf("%s|%s|%d", monitorID, periodType, start.UnixNano())
}

func (m *MockAggregationRepository) Upsert(ctx context.Context, a *aggregation.Aggregation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertError != nil {
		return m.UpsertError
	}
	cp := *a
	m.Aggregations[aggregationKey(a.MonitorID, a.PeriodType, a.PeriodStart)] = &cp
	return nil
}

func (m *MockAggregationRepository) Get(ctx context.Context, monitorID, periodType string, periodStart time.Time) (*aggregation.Aggregation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Aggregations[aggregationKey(monitorID, periodType, periodStart)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *MockAggregationRepository) ListByMonitor(ctx context.Context, monitorID, periodType string, limit int) ([]*aggregation.Aggregation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*aggregation.Aggregation
	for _, a := range m.Aggregations {
		if a.MonitorID == monitorID && a.PeriodType == periodType {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodStart.After(result[j].PeriodStart) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MockAlertRepository is a mock implementation of alert.Repository
type MockAlertRepository struct {
	mu          sync.Mutex
	Alerts      map[string]*alert.Alert
	CreateError error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{
		Alerts: make(map[string]*alert.Alert),
	}
}

func (m *MockAlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	cp := *a
	m.Alerts[a.ID] = &cp
	return nil
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return nil, errors.NotFound("Alert")
	}
	cp := *a
	return &cp, nil
}

func (m *MockAlertRepository) ListByMonitor(ctx context.Context, monitorID string, filter alert.Filter, limit, offset int) ([]*alert.Alert, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*alert.Alert
	for _, a := range m.Alerts {
		if a.MonitorID != monitorID {
			continue
		}
		if filter.Urgency != "" && a.Urgency != filter.Urgency {
			continue
		}
		if filter.UnreadOnly && a.Read {
			continue
		}
		if filter.Since != nil && !a.CreatedAt.After(*filter.Since) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, total, nil
}

func (m *MockAlertRepository) ListSince(ctx context.Context, monitorID string, since time.Time) ([]*alert.Alert, error) {
	result, _, err := m.ListByMonitor(ctx, monitorID, alert.Filter{Since: &since}, 0, 0)
	return result, err
}

func (m *MockAlertRepository) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return errors.NotFound("Alert")
	}
	a.Read = true
	return nil
}

func (m *MockAlertRepository) SetFeedback(ctx context.Context, id, feedback, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return errors.NotFound("Alert")
	}
	a.UserFeedback = feedback
	a.FeedbackComment = comment
	return nil
}

// Count returns the number of stored alerts
func (m *MockAlertRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// MockNotificationRepository is a mock implementation of notification.Repository
type MockNotificationRepository struct {
	mu   sync.Mutex
	Logs []*notification.Log
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{}
}

func (m *MockNotificationRepository) CreateLog(ctx context.Context, l *notification.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.Logs = append(m.Logs, &cp)
	return nil
}

func (m *MockNotificationRepository) ListLogsByAlert(ctx context.Context, alertID string) ([]*notification.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*notification.Log
	for _, l := range m.Logs {
		if l.AlertID == alertID {
			cp := *l
			result = append(result, &cp)
		}
	}
	return result, nil
}

// MockDispatcher records dispatched alerts instead of delivering them
type MockDispatcher struct {
	mu         sync.Mutex
	Dispatched []*alert.Alert
	SendError  error
}

func (m *MockDispatcher) Dispatch(ctx context.Context, a *alert.Alert, channels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Dispatched = append(m.Dispatched, a)
}

func (m *MockDispatcher) Send(ctx context.Context, a *alert.Alert, channel string) error {
	return m.SendError
}

// Count returns the number of dispatched alerts
func (m *MockDispatcher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Dispatched)
}
