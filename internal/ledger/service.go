package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/consent-app/consent_api/internal/logging"
	"github.com/consent-app/consent_api/internal/metrics"
	"github.com/consent-app/consent_api/internal/store"
)

// Service owns every read and write of credit balances.
type Service struct {
	store  store.Store
	retry  store.RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the credit ledger.
func NewService(st store.Store, retry store.RetryPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: st, retry: retry, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// HasEntitlement evaluates the user's entitlement inside the caller's
// transaction. It takes no locks.
func (s *Service) HasEntitlement(ctx context.Context, tx store.Tx, userID int64) (Entitlement, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}
	balance, err := tx.GetBalance(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}
	return Entitlement{Subscribed: user.SubscriptionActive(s.now()), Credits: balance.Quantity}, nil
}

// ReserveCredit covers one consent for userID inside the caller's
// transaction. The caller records the reservation with RecordReservation
// once that transaction has committed. Subscribers are reserved without touching the balance;
// everyone else has the balance row locked and decremented by one.
func (s *Service) ReserveCredit(ctx context.Context, tx store.Tx, userID int64) (Reservation, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return Reservation{}, err
	}
	if user.SubscriptionActive(s.now()) {
		return Reservation{UserID: userID, Method: MethodSubscription}, nil
	}

	balance, err := tx.LockBalance(ctx, userID)
	if err != nil {
		return Reservation{}, err
	}
	if balance.Quantity <= 0 {
		return Reservation{}, ErrInsufficientCredit
	}

	balance.Quantity--
	if err := tx.SaveBalance(ctx, balance); err != nil {
		return Reservation{}, err
	}

	return Reservation{UserID: userID, Method: MethodCredit, Remaining: balance.Quantity}, nil
}

// RecordReservation counts a committed reservation.
func RecordReservation(r Reservation) {
	metrics.CreditsReservedTotal.WithLabelValues(string(r.Method)).Inc()
}

// GrantCredits applies a confirmed payment exactly once. The payment
// reference falls back to the event id when PaymentID is empty. A replay
// returns AlreadyProcessed and leaves the balance untouched.
func (s *Service) GrantCredits(ctx context.Context, in GrantInput) (Grant, error) {
	paymentID := in.PaymentID
	if paymentID == "" {
		paymentID = in.EventID
	}
	if paymentID == "" || in.Quantity <= 0 || in.UserID <= 0 {
		return Grant{}, ErrInvalidGrant
	}

	start := time.Now()
	defer func() {
		metrics.TxDuration.WithLabelValues("grant_credits").Observe(time.Since(start).Seconds())
	}()

	var grant Grant
	err := store.InTxRetry(ctx, s.store, s.retry, func(ctx context.Context, tx store.Tx) error {
		grant = Grant{PaymentID: paymentID}

		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUnknownUser
			}
			return err
		}

		now := s.now()
		inserted, err := tx.InsertPaymentEvent(ctx, store.PaymentEvent{
			PaymentID: paymentID,
			EventID:   in.EventID,
			UserID:    in.UserID,
			Quantity:  in.Quantity,
			AppliedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			grant.Outcome = AlreadyProcessed
			balance, err := tx.GetBalance(ctx, in.UserID)
			if err != nil {
				return err
			}
			grant.Balance = balance.Quantity
			return nil
		}

		balance, err := tx.LockBalance(ctx, in.UserID)
		if err != nil {
			return err
		}
		balance.Quantity += in.Quantity
		balance.LastPurchasedAt = &now
		if err := tx.SaveBalance(ctx, balance); err != nil {
			return err
		}

		grant.Outcome = Granted
		grant.Balance = balance.Quantity
		return nil
	})
	if err != nil {
		return Grant{}, fmt.Errorf("grant credits for payment %s: %w", paymentID, err)
	}

	metrics.CreditsGrantedTotal.WithLabelValues(string(grant.Outcome)).Inc()
	if grant.Outcome == Granted {
		metrics.CreditsGrantedQuantity.Add(float64(in.Quantity))
	}
	s.logger.Info("credit grant applied",
		slog.Int64("user_id", in.UserID),
		slog.String("payment_id", paymentID),
		slog.String("event_id", in.EventID),
		slog.Int("quantity", in.Quantity),
		slog.String("outcome", string(grant.Outcome)),
		slog.Int("balance", grant.Balance),
	)
	return grant, nil
}

// Summary returns the user's balance and subscription state.
func (s *Service) Summary(ctx context.Context, userID int64) (Summary, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	subscribed := user.SubscriptionActive(s.now())
	return Summary{
		UserID:              userID,
		Quantity:            balance.Quantity,
		LastPurchasedAt:     balance.LastPurchasedAt,
		Subscribed:          subscribed,
		SubscriptionEndDate: user.SubscriptionEndDate,
		Entitled:            subscribed || balance.Quantity > 0,
	}, nil
}
