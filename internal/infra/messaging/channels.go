// Package messaging holds the concrete channel adapters over the external
// message gateway. The gateway itself (WhatsApp Business API client, SMS
// provider client) is injected; these adapters only bind a medium and a
// sender identity to it.
package messaging

import (
	"context"

	"chamaledger/internal/domain/messaging"
)

// WhatsAppChannel sends reminders over WhatsApp. Primary channel in the
// default fallback chain.
type WhatsAppChannel struct {
	gateway messaging.Gateway
	sender  string
}

func NewWhatsAppChannel(gw messaging.Gateway, sender string) *WhatsAppChannel {
	return &WhatsAppChannel{gateway: gw, sender: sender}
}

func (c *WhatsAppChannel) Kind() messaging.ChannelKind {
	return messaging.ChannelWhatsApp
}

func (c *WhatsAppChannel) Send(ctx context.Context, address, templateID string, params map[string]string) error {
	return c.gateway.Send(ctx, messaging.ChannelWhatsApp, address, templateID, withSender(params, c.sender))
}

// SMSChannel sends reminders over SMS. Fallback channel for members without
// WhatsApp capability or when WhatsApp delivery fails.
type SMSChannel struct {
	gateway messaging.Gateway
	sender  string
}

func NewSMSChannel(gw messaging.Gateway, sender string) *SMSChannel {
	return &SMSChannel{gateway: gw, sender: sender}
}

func (c *SMSChannel) Kind() messaging.ChannelKind {
	return messaging.ChannelSMS
}

func (c *SMSChannel) Send(ctx context.Context, address, templateID string, params map[string]string) error {
	return c.gateway.Send(ctx, messaging.ChannelSMS, address, templateID, withSender(params, c.sender))
}

func withSender(params map[string]string, sender string) map[string]string {
	if sender == "" {
		return params
	}
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["sender"] = sender
	return out
}
