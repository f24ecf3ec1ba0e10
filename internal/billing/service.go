package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/consent-app/consent_api/internal/ledger"
	"github.com/consent-app/consent_api/internal/logging"
	"github.com/consent-app/consent_api/internal/metrics"
	"github.com/consent-app/consent_api/internal/notification"
	"github.com/consent-app/consent_api/internal/store"
)

// ErrMalformedEvent is returned when a verified notification carries
// metadata that cannot be turned into a grant.
var ErrMalformedEvent = errors.New("malformed payment event")

// Users is the slice of the store billing needs.
type Users interface {
	GetUser(ctx context.Context, id int64) (store.User, error)
	SetStripeCustomerID(ctx context.Context, userID int64, customerID string) (string, error)
}

// Granter applies confirmed payments to balances.
type Granter interface {
	GrantCredits(ctx context.Context, in ledger.GrantInput) (ledger.Grant, error)
}

// Config holds the provider settings exposed to clients.
type Config struct {
	Currency       string
	PublishableKey string
}

// Service creates payment intents and reconciles provider notifications.
type Service struct {
	users    Users
	provider Provider
	verifier Verifier
	granter  Granter
	notifier notification.Notifier
	cfg      Config
	logger   *slog.Logger
}

// NewService constructs the reconciliation gateway. notifier may be nil.
func NewService(users Users, provider Provider, verifier Verifier, granter Granter, notifier notification.Notifier, cfg Config, logger *slog.Logger) *Service {
	if provider == nil {
		provider = &StaticProvider{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{users: users, provider: provider, verifier: verifier, granter: granter, notifier: notifier, cfg: cfg, logger: logger}
}

// IntentInput is a request to buy a credit pack.
type IntentInput struct {
	UserID         int64
	Quantity       int
	IdempotencyKey string
}

// PaymentSheet is what the mobile client needs to present the payment UI.
type PaymentSheet struct {
	PaymentIntent  string `json:"paymentIntent"`
	EphemeralKey   string `json:"ephemeralKey"`
	Customer       string `json:"customer"`
	PublishableKey string `json:"publishableKey"`
}

// CreateIntent prepares a payment for a credit pack. It never changes a
// balance; credits arrive only through HandleNotification.
func (s *Service) CreateIntent(ctx context.Context, in IntentInput) (PaymentSheet, error) {
	pack, err := PriceFor(in.Quantity)
	if err != nil {
		return PaymentSheet{}, err
	}

	user, err := s.users.GetUser(ctx, in.UserID)
	if err != nil {
		return PaymentSheet{}, err
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		created, err := s.provider.CreateCustomer(ctx, user.Email)
		if err != nil {
			return PaymentSheet{}, err
		}
		customerID, err = s.users.SetStripeCustomerID(ctx, user.ID, created)
		if err != nil {
			return PaymentSheet{}, fmt.Errorf("store customer id: %w", err)
		}
		if customerID != created {
			s.logger.Warn("concurrent customer creation, keeping existing customer",
				slog.Int64("user_id", user.ID),
				slog.String("kept", customerID),
				slog.String("discarded", created),
			)
		}
	}

	ephemeralKey, err := s.provider.CreateEphemeralKey(ctx, customerID)
	if err != nil {
		return PaymentSheet{}, err
	}

	var providerKey string
	if in.IdempotencyKey != "" {
		providerKey = fmt.Sprintf("pack:%d:%s", user.ID, in.IdempotencyKey)
	}
	intent, err := s.provider.CreatePaymentIntent(ctx, PaymentIntentInput{
		CustomerID:  customerID,
		AmountCents: pack.AmountCents,
		Currency:    s.cfg.Currency,
		Metadata: map[string]string{
			MetadataUserID:       strconv.FormatInt(user.ID, 10),
			MetadataPackQuantity: strconv.Itoa(pack.Quantity),
		},
		IdempotencyKey: providerKey,
	})
	if err != nil {
		return PaymentSheet{}, err
	}

	metrics.IntentsCreatedTotal.WithLabelValues(strconv.Itoa(pack.Quantity)).Inc()
	s.logger.Info("payment intent created",
		slog.Int64("user_id", user.ID),
		slog.String("payment_intent_id", intent.ID),
		slog.Int("quantity", pack.Quantity),
		slog.Int64("amount_cents", pack.AmountCents),
	)

	return PaymentSheet{
		PaymentIntent:  intent.ClientSecret,
		EphemeralKey:   ephemeralKey,
		Customer:       customerID,
		PublishableKey: s.cfg.PublishableKey,
	}, nil
}

// Outcome describes what a notification did.
type Outcome string

const (
	OutcomeGranted   Outcome = "granted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// NotificationResult is the result of HandleNotification.
type NotificationResult struct {
	EventID string  `json:"event_id"`
	Type    string  `json:"type"`
	Outcome Outcome `json:"outcome"`
}

// HandleNotification verifies a provider notification and, for succeeded
// payments, grants the purchased credits exactly once.
func (s *Service) HandleNotification(ctx context.Context, payload []byte, signatureHeader string) (NotificationResult, error) {
	evt, err := s.verifier.Verify(payload, signatureHeader)
	if err != nil {
		outcomeType := "invalid"
		if errors.Is(err, ErrMalformedEvent) {
			outcomeType = "malformed"
		}
		metrics.WebhookEventsTotal.WithLabelValues(outcomeType, "rejected").Inc()
		s.logger.Warn("payment notification rejected", slog.Any("error", err))
		return NotificationResult{}, err
	}

	result := NotificationResult{EventID: evt.ID, Type: evt.Type, Outcome: OutcomeIgnored}
	if evt.Type != EventPaymentIntentSucceeded {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, string(OutcomeIgnored)).Inc()
		s.logger.Debug("payment notification ignored", slog.String("event_id", evt.ID), slog.String("type", evt.Type))
		return result, nil
	}

	in, err := grantInput(evt)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "rejected").Inc()
		s.logger.Error("payment notification has invalid metadata",
			slog.String("event_id", evt.ID),
			slog.Any("metadata", evt.Metadata),
			slog.Any("error", err),
		)
		return NotificationResult{}, err
	}

	grant, err := s.granter.GrantCredits(ctx, in)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ledger.ErrUnknownUser) || errors.Is(err, ledger.ErrInvalidGrant) {
			outcome = "rejected"
		}
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, outcome).Inc()
		s.logger.Error("payment notification not applied",
			slog.String("event_id", evt.ID),
			slog.String("payment_intent_id", evt.PaymentIntentID),
			slog.Any("error", err),
		)
		return NotificationResult{}, err
	}

	if grant.Outcome == ledger.AlreadyProcessed {
		result.Outcome = OutcomeDuplicate
	} else {
		result.Outcome = OutcomeGranted
		s.notify(ctx, notification.Message{
			Kind:   notification.KindCreditsGranted,
			UserID: in.UserID,
			Body:   fmt.Sprintf("%d credits added, balance %d", in.Quantity, grant.Balance),
		})
	}
	metrics.WebhookEventsTotal.WithLabelValues(evt.Type, string(result.Outcome)).Inc()
	return result, nil
}

func grantInput(evt Event) (ledger.GrantInput, error) {
	userID, err := strconv.ParseInt(evt.Metadata[MetadataUserID], 10, 64)
	if err != nil || userID <= 0 {
		return ledger.GrantInput{}, fmt.Errorf("%w: %s %q", ErrMalformedEvent, MetadataUserID, evt.Metadata[MetadataUserID])
	}
	quantity, err := strconv.Atoi(evt.Metadata[MetadataPackQuantity])
	if err != nil || quantity <= 0 {
		return ledger.GrantInput{}, fmt.Errorf("%w: %s %q", ErrMalformedEvent, MetadataPackQuantity, evt.Metadata[MetadataPackQuantity])
	}
	return ledger.GrantInput{
		UserID:    userID,
		Quantity:  quantity,
		PaymentID: evt.PaymentIntentID,
		EventID:   evt.ID,
	}, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
