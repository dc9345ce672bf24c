package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// AlertService handles alert-related API calls
type AlertService struct {
	client *Client
}

// AlertListOptions contains options for listing a monitor's alerts
type AlertListOptions struct {
	ListOptions
	Urgency    string
	UnreadOnly bool
	Since      *time.Time
}

// Feedback values accepted by the API
const (
	FeedbackUseful    = "useful"
	FeedbackNotUseful = "not_useful"
	FeedbackIncorrect = "incorrect"
)

// ListByMonitor retrieves a page of a monitor's alerts, newest first
func (s *AlertService) ListByMonitor(ctx context.Context, monitorID string, opts *AlertListOptions) (*Page[Alert], error) {
	query := url.Values{}
	if opts != nil {
		setPagination(query, opts.ListOptions)
		if opts.Urgency != "" {
			query.Set("urgency", opts.Urgency)
		}
		if opts.UnreadOnly {
			query.Set("unread", "true")
		}
		if opts.Since != nil {
			query.Set("since", opts.Since.UTC().Format(time.RFC3339))
		}
	}

	var page Page[Alert]
	if err := s.client.doRequest(ctx, http.MethodGet, withQuery(monitorPath(monitorID, "/alerts"), query), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get retrieves a single alert by ID
func (s *AlertService) Get(ctx context.Context, id string) (*Alert, error) {
	var a Alert
	if err := s.client.doRequest(ctx, http.MethodGet, alertPath(id, ""), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkRead marks an alert as read
func (s *AlertService) MarkRead(ctx context.Context, id string) error {
	return s.client.doRequest(ctx, http.MethodPost, alertPath(id, "/read"), nil, nil)
}

// Feedback records the user's verdict on an alert
func (s *AlertService) Feedback(ctx context.Context, id, feedback, comment string) error {
	body := map[string]string{"feedback": feedback}
	if comment != "" {
		body["comment"] = comment
	}
	return s.client.doRequest(ctx, http.MethodPost, alertPath(id, "/feedback"), body, nil)
}

func alertPath(id, suffix string) string {
	return "/api/v1/alerts/" + url.PathEscape(id) + suffix
}
