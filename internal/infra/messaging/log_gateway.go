package messaging

import (
	"context"

	"chamaledger/internal/domain/messaging"

	"github.com/sirupsen/logrus"
)

// LogGateway is a dry-run gateway that logs outbound messages instead of
// delivering them. It stands in for the real WhatsApp/SMS provider clients in
// development; production wiring replaces it in main.
type LogGateway struct {
	logger *logrus.Logger
}

func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, channel messaging.ChannelKind, address, templateID string, params map[string]string) error {
	g.logger.WithFields(logrus.Fields{
		"channel":  channel,
		"address":  address,
		"template": templateID,
		"params":   params,
	}).Info("dry-run: reminder not actually sent")
	return nil
}
