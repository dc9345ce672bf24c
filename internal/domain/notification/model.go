package notification

import (
	"fmt"
	"strings"
	"time"
)

// ChannelKind identifies a delivery transport
type ChannelKind string

const (
	ChannelSlack   ChannelKind = "slack"
	ChannelWebhook ChannelKind = "webhook"
	ChannelNATS    ChannelKind = "nats"
	ChannelLog     ChannelKind = "log"
)

// Channel is a parsed notification channel such as "webhook:https://..."
type Channel struct {
	Kind   ChannelKind `json:"kind"`
	Target string      `json:"target,omitempty"`
}

// String renders the channel back to its configured form
func (c Channel) String() string {
	if c.Target == "" {
		return string(c.Kind)
	}
	return string(c.Kind) + ":" + c.Target
}

// ParseChannel parses a configured channel string
func ParseChannel(raw string) (Channel, error) {
	raw = strings.TrimSpace(raw)
	kind, target, _ := strings.Cut(raw, ":")
	ch := Channel{Kind: ChannelKind(strings.ToLower(kind)), Target: target}

	switch ch.Kind {
	case ChannelSlack, ChannelLog:
		return ch, nil
	case ChannelWebhook:
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			return Channel{}, fmt.Errorf("webhook channel needs an http(s) url: %q", raw)
		}
		return ch, nil
	case ChannelNATS:
		if target == "" {
			return Channel{}, fmt.Errorf("nats channel needs a subject: %q", raw)
		}
		return ch, nil
	default:
		return Channel{}, fmt.Errorf("unknown notification channel: %q", raw)
	}
}

// DeliveryStatus represents the status of a notification delivery
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Log records one delivery of an alert to a channel
type Log struct {
	ID           string         `json:"id"`
	AlertID      string         `json:"alert_id"`
	MonitorID    string         `json:"monitor_id"`
	Channel      string         `json:"channel"`
	Status       DeliveryStatus `json:"status"`
	Attempts     int            `json:"attempts"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Message is the wire form of an alert sent to webhooks and NATS
type Message struct {
	Event     string    `json:"event"`
	AlertID   string    `json:"alert_id"`
	MonitorID string    `json:"monitor_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Priority  float64   `json:"priority"`
	Urgency   string    `json:"urgency"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// EventAlertCreated is the event name carried by alert messages
const EventAlertCreated = "alert.created"
