package notification

import (
	"context"

	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
)

// Dispatcher delivers alerts to their configured channels
type Dispatcher interface {
	// Dispatch fans an alert out to every channel in the background
	Dispatch(ctx context.Context, a *alert.Alert, channels []string)

	// Send delivers an alert to one channel synchronously
	Send(ctx context.Context, a *alert.Alert, channel string) error
}

// Sender delivers to a single kind of channel
type Sender interface {
	Send(ctx context.Context, a *alert.Alert, ch Channel) error
	Kind() ChannelKind
}
