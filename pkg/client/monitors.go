package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// MonitorService handles monitor-related API calls
type MonitorService struct {
	client *Client
}

// CreateMonitorRequest represents a request to create a monitor
type CreateMonitorRequest struct {
	Entity               string   `json:"entity"`
	Category             string   `json:"category,omitempty"`
	Frequency            string   `json:"frequency"`
	Frameworks           []string `json:"frameworks,omitempty"`
	AlertThreshold       *float64 `json:"alert_threshold,omitempty"`
	NotificationChannels []string `json:"notification_channels,omitempty"`
}

// UpdateMonitorRequest represents a partial update; nil fields are unchanged
type UpdateMonitorRequest struct {
	Category             *string  `json:"category,omitempty"`
	Frequency            *string  `json:"frequency,omitempty"`
	Frameworks           []string `json:"frameworks,omitempty"`
	AlertThreshold       *float64 `json:"alert_threshold,omitempty"`
	NotificationChannels []string `json:"notification_channels,omitempty"`
}

// MonitorListOptions contains options for listing monitors
type MonitorListOptions struct {
	ListOptions
	Status string
	Entity string
}

// SnapshotQuery selects snapshots with Start <= timestamp < End
type SnapshotQuery struct {
	Start time.Time
	End   time.Time
	Limit int
}

// List retrieves a page of the caller's monitors
func (s *MonitorService) List(ctx context.Context, opts *MonitorListOptions) (*Page[Monitor], error) {
	query := url.Values{}
	if opts != nil {
		setPagination(query, opts.ListOptions)
		if opts.Status != "" {
			query.Set("status", opts.Status)
		}
		if opts.Entity != "" {
			query.Set("entity", opts.Entity)
		}
	}

	var page Page[Monitor]
	if err := s.client.doRequest(ctx, http.MethodGet, withQuery("/api/v1/monitors", query), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get retrieves a single monitor by ID
func (s *MonitorService) Get(ctx context.Context, id string) (*Monitor, error) {
	var m Monitor
	if err := s.client.doRequest(ctx, http.MethodGet, monitorPath(id, ""), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create creates a new active monitor
func (s *MonitorService) Create(ctx context.Context, req CreateMonitorRequest) (*Monitor, error) {
	var m Monitor
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/monitors", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Update changes a monitor's configuration
func (s *MonitorService) Update(ctx context.Context, id string, req UpdateMonitorRequest) (*Monitor, error) {
	var m Monitor
	if err := s.client.doRequest(ctx, http.MethodPut, monitorPath(id, ""), req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete deletes a monitor
func (s *MonitorService) Delete(ctx context.Context, id string) error {
	return s.client.doRequest(ctx, http.MethodDelete, monitorPath(id, ""), nil, nil)
}

// Pause stops scheduled checks of an active monitor
func (s *MonitorService) Pause(ctx context.Context, id string) (*Monitor, error) {
	var m Monitor
	if err := s.client.doRequest(ctx, http.MethodPost, monitorPath(id, "/pause"), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Resume reactivates a paused or errored monitor
func (s *MonitorService) Resume(ctx context.Context, id string) (*Monitor, error) {
	var m Monitor
	if err := s.client.doRequest(ctx, http.MethodPost, monitorPath(id, "/resume"), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Check runs a check now. force also checks a paused monitor.
func (s *MonitorService) Check(ctx context.Context, id string, force bool) (*CheckResponse, error) {
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}

	var resp CheckResponse
	if err := s.client.doRequest(ctx, http.MethodPost, withQuery(monitorPath(id, "/check"), query), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Snapshots retrieves decoded snapshots of a monitor
func (s *MonitorService) Snapshots(ctx context.Context, id string, q SnapshotQuery) ([]Snapshot, error) {
	query := url.Values{}
	if !q.Start.IsZero() {
		query.Set("start", q.Start.UTC().Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		query.Set("end", q.End.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var snaps []Snapshot
	if err := s.client.doRequest(ctx, http.MethodGet, withQuery(monitorPath(id, "/snapshots"), query), nil, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// Aggregations retrieves the most recent rollups of a period type
func (s *MonitorService) Aggregations(ctx context.Context, id, period string, limit int) ([]Aggregation, error) {
	query := url.Values{}
	if period != "" {
		query.Set("period", period)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var aggs []Aggregation
	if err := s.client.doRequest(ctx, http.MethodGet, withQuery(monitorPath(id, "/aggregations"), query), nil, &aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}

func monitorPath(id, suffix string) string {
	return "/api/v1/monitors/" + url.PathEscape(id) + suffix
}

func setPagination(query url.Values, opts ListOptions) {
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(opts.PageSize))
	}
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}
