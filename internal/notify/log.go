package notify

import (
	"context"

	"go.uber.org/zap"
)

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes events to the log instead of a broker. Used when
// no Kafka brokers are configured.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.lg.Info("Notification",
		zap.String("order_id", ev.OrderID),
		zap.String("external_id", ev.ExternalID),
		zap.String("kind", string(ev.Kind)),
		zap.String("recipient", ev.Recipient),
	)
	return nil
}
