package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/notification"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/metrics"
)

// SignatureHeader carries the HMAC-SHA256 of a webhook body
const SignatureHeader = "X-Changewatch-Signature"

// Publisher is the subset of a NATS connection used to publish alerts
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationService implements notification.Dispatcher. Each channel is
// delivered and retried independently and every delivery is logged.
type NotificationService struct {
	repo       notification.Repository
	senders    map[notification.ChannelKind]notification.Sender
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *logger.Logger

	wg sync.WaitGroup
}

// NewNotificationService creates a dispatcher with the slack, webhook and log
// senders. The NATS sender is added when pub is non-nil.
func NewNotificationService(repo notification.Repository, cfg config.NotificationConfig, pub Publisher, log *logger.Logger) *NotificationService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	s := &NotificationService{
		repo:       repo,
		senders:    make(map[notification.ChannelKind]notification.Sender),
		maxRetries: uint64(max(cfg.MaxRetries, 0)),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
		logger: log,
	}

	s.RegisterSender(&SlackSender{webhookURL: cfg.SlackWebhookURL, channel: cfg.SlackChannel, client: client})
	s.RegisterSender(&WebhookSender{secret: cfg.WebhookSecret, client: client})
	s.RegisterSender(&LogSender{logger: log})
	if pub != nil {
		s.RegisterSender(&NATSSender{pub: pub})
	}
	return s
}

// RegisterSender adds or replaces the sender for its channel kind
func (s *NotificationService) RegisterSender(sender notification.Sender) {
	s.senders[sender.Kind()] = sender
}

// Dispatch delivers an alert to every channel in the background. It never
// blocks the caller; cancellation of ctx does not abort deliveries.
func (s *NotificationService) Dispatch(ctx context.Context, a *alert.Alert, channels []string) {
	ctx = context.WithoutCancel(ctx)
	for _, raw := range channels {
		s.wg.Add(1)
		go func(raw string) {
			defer s.wg.Done()
			s.deliver(ctx, a, raw, true)
		}(raw)
	}
}

// Send delivers an alert to one channel synchronously with a single attempt
func (s *NotificationService) Send(ctx context.Context, a *alert.Alert, channel string) error {
	return s.deliver(ctx, a, channel, false)
}

// Wait blocks until background deliveries finish
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) deliver(ctx context.Context, a *alert.Alert, raw string, retry bool) error {
	start := time.Now()
	attempts := 0

	ch, err := notification.ParseChannel(raw)
	if err == nil {
		sender, ok := s.senders[ch.Kind]
		if !ok {
			err = fmt.Errorf("no sender configured for %s", ch.Kind)
		} else {
			op := func() error {
				attempts++
				return sender.Send(ctx, a, ch)
			}
			if retry {
				policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx)
				err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
					s.logger.WithFields(map[string]interface{}{
						"alert_id": a.ID,
						"channel":  raw,
						"attempt":  attempts,
						"wait":     wait.String(),
					}).WarnWithErr(err, "Notification attempt failed, retrying")
				})
			} else {
				err = op()
			}
		}
	}

	status := notification.DeliveryStatusSent
	entry := &notification.Log{
		ID:        uuid.New().String(),
		AlertID:   a.ID,
		MonitorID: a.MonitorID,
		Channel:   raw,
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		status = notification.DeliveryStatusFailed
		entry.ErrorMessage = err.Error()
	}
	entry.Status = status

	if logErr := s.repo.CreateLog(ctx, entry); logErr != nil {
		s.logger.ErrorWithErr(logErr, "Failed to record notification delivery")
	}
	kind := string(ch.Kind)
	if kind == "" {
		kind = "invalid"
	}
	metrics.RecordNotification(kind, string(status))

	fields := s.logger.WithFields(map[string]interface{}{
		"alert_id":   a.ID,
		"monitor_id": a.MonitorID,
		"channel":    raw,
		"attempts":   attempts,
		"duration":   time.Since(start).String(),
	})
	if err != nil {
		fields.ErrorWithErr(err, "Notification delivery failed")
		return errors.NotificationError(raw, err)
	}
	fields.Info("Notification delivered")
	return nil
}

// newMessage builds the wire form of an alert
func newMessage(a *alert.Alert) notification.Message {
	return notification.Message{
		Event:     notification.EventAlertCreated,
		AlertID:   a.ID,
		MonitorID: a.MonitorID,
		Title:     a.Title,
		Summary:   a.Summary,
		Priority:  a.Priority,
		Urgency:   a.Urgency,
		Timestamp: a.CreatedAt,
		Data:      a,
	}
}

// SlackSender posts alerts to a Slack incoming webhook
type SlackSender struct {
	webhookURL string
	channel    string
	client     *http.Client
}

func (s *SlackSender) Kind() notification.ChannelKind { return notification.ChannelSlack }

func (s *SlackSender) Send(ctx context.Context, a *alert.Alert, ch notification.Channel) error {
	if s.webhookURL == "" {
		return backoff.Permanent(fmt.Errorf("no Slack webhook URL configured"))
	}

	payload, err := json.Marshal(s.buildMessage(a))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal Slack message: %w", err))
	}
	return postJSON(ctx, s.client, s.webhookURL, payload, nil)
}

// buildMessage renders an alert as a Slack attachment coloured by urgency
func (s *SlackSender) buildMessage(a *alert.Alert) map[string]interface{} {
	color := "#36a64f"
	emoji := ":bell:"
	switch a.Urgency {
	case alert.UrgencyCritical:
		color = "#ff0000"
		emoji = ":rotating_light:"
	case alert.UrgencyHigh:
		color = "#ff8c00"
		emoji = ":warning:"
	case alert.UrgencyMedium:
		color = "#ffcc00"
	}

	msg := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color": color,
				"title": fmt.Sprintf("%s %s", emoji, a.Title),
				"text":  a.Summary,
				"fields": []map[string]interface{}{
					{"title": "Priority", "value": strconv.FormatFloat(a.Priority, 'f', 1, 64), "short": true},
					{"title": "Confidence", "value": fmt.Sprintf("%.0f%%", a.Confidence*100), "short": true},
				},
				"footer": "changewatch",
				"ts":     a.CreatedAt.Unix(),
			},
		},
	}
	if s.channel != "" {
		msg["channel"] = s.channel
	}
	return msg
}

// WebhookSender posts the alert message to an arbitrary URL
type WebhookSender struct {
	secret string
	client *http.Client
}

func (s *WebhookSender) Kind() notification.ChannelKind { return notification.ChannelWebhook }

func (s *WebhookSender) Send(ctx context.Context, a *alert.Alert, ch notification.Channel) error {
	payload, err := json.Marshal(newMessage(a))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}

	headers := map[string]string{
		"X-Changewatch-Event":     notification.EventAlertCreated,
		"X-Changewatch-Timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if s.secret != "" {
		headers[SignatureHeader] = SignPayload(payload, s.secret)
	}
	return postJSON(ctx, s.client, ch.Target, payload, headers)
}

// SignPayload signs the payload with HMAC-SHA256
func SignPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// NATSSender publishes the alert message on a subject
type NATSSender struct {
	pub Publisher
}

func (s *NATSSender) Kind() notification.ChannelKind { return notification.ChannelNATS }

func (s *NATSSender) Send(ctx context.Context, a *alert.Alert, ch notification.Channel) error {
	payload, err := json.Marshal(newMessage(a))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}
	return s.pub.Publish(ch.Target, payload)
}

// LogSender writes the alert to the application log
type LogSender struct {
	logger *logger.Logger
}

func (s *LogSender) Kind() notification.ChannelKind { return notification.ChannelLog }

func (s *LogSender) Send(ctx context.Context, a *alert.Alert, ch notification.Channel) error {
	s.logger.WithFields(map[string]interface{}{
		"alert_id":   a.ID,
		"monitor_id": a.MonitorID,
		"priority":   a.Priority,
		"urgency":    a.Urgency,
		"confidence": a.Confidence,
	}).Info(a.Title)
	return nil
}

// postJSON posts a body and treats 5xx and 429 responses as retryable
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return err
	}
	return backoff.Permanent(err)
}
