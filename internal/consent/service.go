package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consent-app/consent_api/internal/codec"
	"github.com/consent-app/consent_api/internal/ledger"
	"github.com/consent-app/consent_api/internal/logging"
	"github.com/consent-app/consent_api/internal/metrics"
	"github.com/consent-app/consent_api/internal/notification"
	"github.com/consent-app/consent_api/internal/store"
)

// Sealer encrypts payloads for one consent id.
type Sealer interface {
	Seal(consentID uuid.UUID, p codec.Payload) ([]byte, error)
	Open(consentID uuid.UUID, sealed []byte) (codec.Payload, error)
}

// Service runs the consent lifecycle on top of the ledger and the store.
type Service struct {
	store    store.Store
	ledger   *ledger.Service
	sealer   Sealer
	notifier notification.Notifier
	retry    store.RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a consent service. notifier may be nil.
func NewService(st store.Store, led *ledger.Service, sealer Sealer, notifier notification.Notifier, retry store.RetryPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:    st,
		ledger:   led,
		sealer:   sealer,
		notifier: notifier,
		retry:    retry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput captures what an initiator submits.
type CreateInput struct {
	InitiatorID  int64
	PartnerEmail string
	Payload      codec.Payload
}

// View is a consent as seen by one of its parties, payload decrypted.
type View struct {
	ID                   uuid.UUID           `json:"id"`
	InitiatorID          int64               `json:"initiator_id"`
	PartnerID            int64               `json:"partner_id"`
	Role                 Role                `json:"role"`
	Payload              *codec.Payload      `json:"payload,omitempty"`
	Status               store.ConsentStatus `json:"status"`
	PaymentStatus        store.PaymentStatus `json:"payment_status"`
	InitiatorConfirmed   bool                `json:"initiator_confirmed"`
	PartnerConfirmed     bool                `json:"partner_confirmed"`
	BiometricState       BiometricState      `json:"biometric_state"`
	BiometricValidated   bool                `json:"biometric_validated"`
	BiometricValidatedAt *time.Time          `json:"biometric_validated_at,omitempty"`
	Visibility           Visibility          `json:"visibility"`
	CreatedAt            time.Time           `json:"created_at"`
}

// BiometricResult reports the state after a confirmation.
type BiometricResult struct {
	Consent      View `json:"consent"`
	ValidatedNow bool `json:"validated_now"`
}

// Create reserves one unit of entitlement for the initiator and stores the
// sealed consent in the same transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (View, error) {
	if strings.TrimSpace(in.Payload.Message) == "" {
		s.record("create", ErrInvalidPayload)
		return View{}, ErrInvalidPayload
	}
	email := strings.ToLower(strings.TrimSpace(in.PartnerEmail))
	if email == "" {
		s.record("create", ErrPartnerNotFound)
		return View{}, ErrPartnerNotFound
	}

	var (
		created     store.Consent
		reservation ledger.Reservation
	)
	err := s.inTx(ctx, "create", func(ctx context.Context, tx store.Tx) error {
		partner, err := tx.FindUserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPartnerNotFound
			}
			return err
		}
		if partner.ID == in.InitiatorID {
			return ErrSelfConsent
		}

		entitlement, err := s.ledger.HasEntitlement(ctx, tx, in.InitiatorID)
		if err != nil {
			return err
		}
		if !entitlement.Allowed() {
			return ErrNoEntitlement
		}

		reservation, err = s.ledger.ReserveCredit(ctx, tx, in.InitiatorID)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientCredit) {
				return ErrNoEntitlement
			}
			return err
		}

		id := uuid.New()
		sealed, err := s.sealer.Seal(id, in.Payload)
		if err != nil {
			return fmt.Errorf("seal payload: %w", err)
		}

		paymentStatus := store.PaymentPending
		if reservation.Method == ledger.MethodSubscription {
			paymentStatus = store.PaymentCompleted
		}

		created = store.Consent{
			ID:            id,
			InitiatorID:   in.InitiatorID,
			PartnerID:     partner.ID,
			Payload:       sealed,
			Status:        store.ConsentPending,
			PaymentStatus: paymentStatus,
			CreatedAt:     s.now(),
		}
		return tx.InsertConsent(ctx, created)
	})
	s.record("create", err)
	if err != nil {
		return View{}, err
	}
	ledger.RecordReservation(reservation)

	s.logger.Info("consent created",
		slog.String("consent_id", created.ID.String()),
		slog.Int64("initiator_id", created.InitiatorID),
		slog.Int64("partner_id", created.PartnerID),
		slog.String("payment_status", string(created.PaymentStatus)),
	)
	s.notify(ctx, notification.Message{
		Kind:      notification.KindConsentRequested,
		UserID:    created.PartnerID,
		ConsentID: created.ID.String(),
		Body:      "You have a new consent request",
	})

	payload := in.Payload
	return s.view(created, RoleInitiator, &payload), nil
}

// Accept lets the partner accept a pending consent.
func (s *Service) Accept(ctx context.Context, consentID uuid.UUID, actorID int64) (View, error) {
	return s.decide(ctx, "accept", consentID, actorID, store.ConsentAccepted)
}

// Refuse lets the partner refuse a pending consent.
func (s *Service) Refuse(ctx context.Context, consentID uuid.UUID, actorID int64) (View, error) {
	return s.decide(ctx, "refuse", consentID, actorID, store.ConsentRefused)
}

func (s *Service) decide(ctx context.Context, op string, consentID uuid.UUID, actorID int64, to store.ConsentStatus) (View, error) {
	var updated store.Consent
	err := s.inTx(ctx, op, func(ctx context.Context, tx store.Tx) error {
		c, err := s.lock(ctx, tx, consentID)
		if err != nil {
			return err
		}
		if err := decide(&c, roleOf(c, actorID), to); err != nil {
			return err
		}
		updated = c
		return tx.UpdateConsent(ctx, c)
	})
	s.record(op, err)
	if err != nil {
		return View{}, err
	}

	kind, body := notification.KindConsentAccepted, "Your consent was accepted"
	if to == store.ConsentRefused {
		kind, body = notification.KindConsentRefused, "Your consent was refused"
	}
	s.logger.Info("consent answered",
		slog.String("consent_id", updated.ID.String()),
		slog.String("status", string(updated.Status)),
	)
	s.notify(ctx, notification.Message{Kind: kind, UserID: updated.InitiatorID, ConsentID: updated.ID.String(), Body: body})

	return s.open(updated, RolePartner), nil
}

// ConfirmBiometric records the actor's biometric confirmation. The consent
// is validated once both parties have confirmed, whatever its status.
func (s *Service) ConfirmBiometric(ctx context.Context, consentID uuid.UUID, actorID int64) (BiometricResult, error) {
	var (
		updated      store.Consent
		role         Role
		validatedNow bool
	)
	err := s.inTx(ctx, "confirm_biometric", func(ctx context.Context, tx store.Tx) error {
		c, err := s.lock(ctx, tx, consentID)
		if err != nil {
			return err
		}
		role = roleOf(c, actorID)
		validatedNow, err = confirm(&c, role, s.now())
		if err != nil {
			return err
		}
		updated = c
		return tx.UpdateConsent(ctx, c)
	})
	s.record("confirm_biometric", err)
	if err != nil {
		return BiometricResult{}, err
	}

	if validatedNow {
		metrics.BiometricValidatedTotal.Inc()
		s.logger.Info("consent biometric validated", slog.String("consent_id", updated.ID.String()))
		for _, uid := range []int64{updated.InitiatorID, updated.PartnerID} {
			s.notify(ctx, notification.Message{
				Kind:      notification.KindBiometricValidated,
				UserID:    uid,
				ConsentID: updated.ID.String(),
				Body:      "Both parties confirmed the consent",
			})
		}
	}

	return BiometricResult{Consent: s.open(updated, role), ValidatedNow: validatedNow}, nil
}

// SoftDelete hides the consent from both parties' history. The row is kept
// and the partner can still read it by id.
func (s *Service) SoftDelete(ctx context.Context, consentID uuid.UUID, actorID int64) error {
	err := s.inTx(ctx, "soft_delete", func(ctx context.Context, tx store.Tx) error {
		c, err := s.lock(ctx, tx, consentID)
		if err != nil {
			return err
		}
		if c.DeletedByInitiator && roleOf(c, actorID) == RoleInitiator {
			return nil
		}
		if err := hide(&c, roleOf(c, actorID)); err != nil {
			return err
		}
		return tx.UpdateConsent(ctx, c)
	})
	s.record("soft_delete", err)
	return err
}

// History lists the consents where userID is a party, newest first,
// leaving out those hidden by their initiator.
func (s *Service) History(ctx context.Context, userID int64) ([]View, error) {
	consents, err := s.store.ListConsents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	views := make([]View, 0, len(consents))
	for _, c := range consents {
		views = append(views, s.open(c, roleOf(c, userID)))
	}
	return views, nil
}

// Get returns one consent to either party.
func (s *Service) Get(ctx context.Context, consentID uuid.UUID, actorID int64) (View, error) {
	c, err := s.store.GetConsent(ctx, consentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, err
	}
	role := roleOf(c, actorID)
	if role == RoleNone {
		return View{}, ErrUnauthorized
	}
	if !visibleTo(c, role) {
		return View{}, ErrNotFound
	}
	return s.open(c, role), nil
}

func (s *Service) lock(ctx context.Context, tx store.Tx, id uuid.UUID) (store.Consent, error) {
	c, err := tx.LockConsent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Consent{}, ErrNotFound
		}
		return store.Consent{}, err
	}
	return c, nil
}

func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.TxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	return store.InTxRetry(ctx, s.store, s.retry, fn)
}

// open decrypts the payload for a view. A payload that cannot be opened is
// logged and left out rather than failing the whole read.
func (s *Service) open(c store.Consent, role Role) View {
	p, err := s.sealer.Open(c.ID, c.Payload)
	if err != nil {
		s.logger.Warn("consent payload unreadable",
			slog.String("consent_id", c.ID.String()),
			slog.Any("error", err),
		)
		return s.view(c, role, nil)
	}
	return s.view(c, role, &p)
}

func (s *Service) view(c store.Consent, role Role, p *codec.Payload) View {
	return View{
		ID:                   c.ID,
		InitiatorID:          c.InitiatorID,
		PartnerID:            c.PartnerID,
		Role:                 role,
		Payload:              p,
		Status:               c.Status,
		PaymentStatus:        c.PaymentStatus,
		InitiatorConfirmed:   c.InitiatorConfirmed,
		PartnerConfirmed:     c.PartnerConfirmed,
		BiometricState:       biometricStateOf(c),
		BiometricValidated:   c.BiometricValidated,
		BiometricValidatedAt: c.BiometricValidatedAt,
		Visibility:           visibilityOf(c),
		CreatedAt:            c.CreatedAt,
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed",
			slog.String("kind", msg.Kind),
			slog.Int64("user_id", msg.UserID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) record(op string, err error) {
	metrics.TransitionsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, ErrPartnerNotFound):
		return "partner_not_found"
	case errors.Is(err, ErrNoEntitlement):
		return "no_entitlement"
	case errors.Is(err, ErrSelfConsent):
		return "self_consent"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case store.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
