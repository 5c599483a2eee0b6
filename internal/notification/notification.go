package notification

import (
	"context"
	"log/slog"
)

const (
	// KindVerificationCode carries a step-up verification code to its assignee.
	KindVerificationCode = "verification_code"
	// KindInvitation carries an account invitation to a new user.
	KindInvitation = "invitation"
	// KindPaymentReceived tells a beneficiary that a payment was confirmed.
	KindPaymentReceived = "payment_received"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
// Bodies may carry codes and are only logged at debug level.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "subject", message.Subject)
	n.logger.DebugContext(ctx, "notification body", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
