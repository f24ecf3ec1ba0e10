package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict indicates a uniqueness violation, e.g. a duplicate email.
	ErrConflict = errors.New("store: conflict")

	// ErrTransient marks failures caused by lock contention, serialization
	// failures or timeouts. The whole transaction may be retried.
	ErrTransient = errors.New("store: transient failure")
)

// IsTransient reports whether err is worth retrying from scratch.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Tx is the unit of work handed to InTx callbacks. Lock* methods hold a row
// lock until the transaction ends.
type Tx interface {
	GetUser(ctx context.Context, id int64) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)

	// GetBalance reads the balance without locking it. A missing row reads
	// as quantity zero.
	GetBalance(ctx context.Context, userID int64) (CreditBalance, error)
	// LockBalance returns the user's balance row, creating it with quantity
	// zero when missing, and locks it for the rest of the transaction.
	LockBalance(ctx context.Context, userID int64) (CreditBalance, error)
	SaveBalance(ctx context.Context, balance CreditBalance) error

	// InsertPaymentEvent records ev and reports false when its PaymentID
	// has already been recorded. Nothing is written in that case.
	InsertPaymentEvent(ctx context.Context, ev PaymentEvent) (bool, error)

	InsertConsent(ctx context.Context, c Consent) error
	LockConsent(ctx context.Context, id uuid.UUID) (Consent, error)
	UpdateConsent(ctx context.Context, c Consent) error
}

// Store is the durable relational store behind the ledger and the consent
// state machine.
type Store interface {
	// InTx runs fn inside a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	// SetStripeCustomerID assigns customerID only when the user has none yet
	// and returns the id the user ends up with.
	SetStripeCustomerID(ctx context.Context, userID int64, customerID string) (string, error)

	// GetBalance returns a zero balance when no row exists.
	GetBalance(ctx context.Context, userID int64) (CreditBalance, error)

	GetConsent(ctx context.Context, id uuid.UUID) (Consent, error)
	// ListConsents returns the consents where userID is initiator or
	// partner, newest first. Consents hidden by their initiator are left out
	// for both parties.
	ListConsents(ctx context.Context, userID int64) ([]Consent, error)

	Ping(ctx context.Context) error
}
