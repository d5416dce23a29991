// Package messaging defines the outbound notification capability the core
// depends on. The concrete gateway (WhatsApp Business API client, SMS
// provider client) is an external collaborator living behind the Gateway
// interface; channels are thin per-medium adapters over it.
package messaging

import (
	"context"
	"errors"
	"time"
)

// ChannelKind names a delivery medium.
type ChannelKind string

const (
	ChannelWhatsApp ChannelKind = "WHATSAPP"
	ChannelSMS      ChannelKind = "SMS"
)

// Gateway is the external message transport. Implementations translate a
// template id plus params into a rendered message for the given address.
type Gateway interface {
	Send(ctx context.Context, channel ChannelKind, address, templateID string, params map[string]string) error
}

// Channel is a polymorphic send capability for one medium. The dispatcher
// walks a fallback chain of channels instead of branching on channel type.
type Channel interface {
	Kind() ChannelKind
	Send(ctx context.Context, address, templateID string, params map[string]string) error
}

// DeliveryResult is the outcome of dispatching one reminder job.
type DeliveryResult struct {
	Delivered bool
	Channel   ChannelKind
	Timestamp time.Time
	Err       string
}

// PermanentError marks a send failure that retrying cannot fix, such as an
// invalid or unreachable address. The dispatcher records it terminally
// instead of backing off.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return "permanent channel error: " + e.Reason
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
