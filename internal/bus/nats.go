package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

// Bus wraps a NATS connection used both to publish alerts and to receive
// check triggers.
type Bus struct {
	Conn   *nats.Conn
	logger *logger.Logger
}

// TriggerEvent asks for an immediate check of a monitor
type TriggerEvent struct {
	MonitorID string `json:"monitor_id"`
}

// Connect opens a NATS connection that keeps reconnecting in the background
func Connect(url string, log *logger.Logger) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.Name("changewatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WarnWithErr(err, "NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &Bus{Conn: conn, logger: log}, nil
}

// Publish sends raw data on a subject
func (b *Bus) Publish(subject string, data []byte) error {
	return b.Conn.Publish(subject, data)
}

// SubscribeTriggers calls handler for every well-formed trigger event.
// Malformed messages are logged and dropped.
func (b *Bus) SubscribeTriggers(subject string, handler func(TriggerEvent)) (*nats.Subscription, error) {
	return b.Conn.Subscribe(subject, func(msg *nats.Msg) {
		evt, err := DecodeTrigger(msg.Data)
		if err != nil {
			b.logger.WithFields(map[string]interface{}{
				"subject": subject,
			}).WarnWithErr(err, "Dropping malformed trigger")
			return
		}
		handler(evt)
	})
}

// DecodeTrigger parses a trigger message body
func DecodeTrigger(data []byte) (TriggerEvent, error) {
	var evt TriggerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return TriggerEvent{}, fmt.Errorf("invalid trigger payload: %w", err)
	}
	if evt.MonitorID == "" {
		return TriggerEvent{}, fmt.Errorf("trigger payload has no monitor_id")
	}
	return evt, nil
}

// Close drains pending messages and closes the connection
func (b *Bus) Close() {
	if b.Conn != nil {
		b.Conn.Drain()
		b.Conn.Close()
	}
}
