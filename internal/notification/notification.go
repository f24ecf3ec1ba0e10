package notification

import (
	"context"
	"log/slog"
)

const (
	// KindConsentRequested tells the partner a consent awaits their answer.
	KindConsentRequested = "consent_requested"
	// KindConsentAccepted tells the initiator the partner accepted.
	KindConsentAccepted = "consent_accepted"
	// KindConsentRefused tells the initiator the partner refused.
	KindConsentRefused = "consent_refused"
	// KindBiometricValidated tells both parties the consent was confirmed twice.
	KindBiometricValidated = "consent_biometric_validated"
	// KindCreditsGranted tells a buyer their credit pack is available.
	KindCreditsGranted = "credits_granted"
)

// Message describes a notification payload.
type Message struct {
	Kind      string `json:"kind"`
	UserID    int64  `json:"user_id"`
	ConsentID string `json:"consent_id,omitempty"`
	Body      string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. Used when no Redis is
// configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.Int64("user_id", message.UserID),
		slog.String("consent_id", message.ConsentID),
		slog.String("body", message.Body),
	)
	return nil
}
