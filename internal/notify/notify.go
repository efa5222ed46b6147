// Package notify delivers out-of-band notifications for identities that
// should hear about chat activity through channels other than an open
// websocket, such as email or SMS gateways.
package notify

import (
	"context"
	"log/slog"
)

// Notifier pushes an event to an identity through an external channel.
// Implementations must tolerate unknown identities without error.
type Notifier interface {
	Notify(ctx context.Context, identityID, event string, payload any) error
}

// LogNotifier records notifications instead of delivering them. It stands in
// for a real gateway in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, identityID, event string, payload any) error {
	n.logger.Info("notification",
		slog.String("identity", identityID),
		slog.String("event", event),
		slog.Any("payload", payload))
	return nil
}
