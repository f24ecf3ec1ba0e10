package ledger

import (
	"errors"
	"time"
)

var (
	// ErrInsufficientCredit occurs when a user without an active subscription
	// has no credit left to reserve.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrInvalidGrant indicates a grant request that can never succeed, such
	// as a non-positive quantity or a missing payment reference.
	ErrInvalidGrant = errors.New("invalid credit grant")

	// ErrUnknownUser indicates the grant targets a user that does not exist.
	ErrUnknownUser = errors.New("unknown user")
)

// Method describes how a consent reservation was covered.
type Method string

const (
	// MethodSubscription covers the reservation with an active subscription
	// and leaves the balance untouched.
	MethodSubscription Method = "subscription"
	// MethodCredit consumes exactly one prepaid credit.
	MethodCredit Method = "credit"
)

// Entitlement reports whether a user may create a consent right now.
type Entitlement struct {
	Subscribed bool
	Credits    int
}

// Allowed reports whether either source of entitlement is present.
func (e Entitlement) Allowed() bool {
	return e.Subscribed || e.Credits > 0
}

// Reservation is the outcome of a successful ReserveCredit.
type Reservation struct {
	UserID    int64
	Method    Method
	Remaining int
}

// GrantInput identifies one payment confirmation to apply.
type GrantInput struct {
	UserID    int64
	Quantity  int
	PaymentID string
	EventID   string
}

// GrantOutcome distinguishes first application from a replay.
type GrantOutcome string

const (
	Granted          GrantOutcome = "granted"
	AlreadyProcessed GrantOutcome = "already_processed"
)

// Grant is the result of GrantCredits.
type Grant struct {
	Outcome   GrantOutcome
	PaymentID string
	Balance   int
}

// Summary is the read model exposed to clients.
type Summary struct {
	UserID              int64      `json:"user_id"`
	Quantity            int        `json:"quantity"`
	LastPurchasedAt     *time.Time `json:"last_purchased_at,omitempty"`
	Subscribed          bool       `json:"subscribed"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	Entitled            bool       `json:"entitled"`
}
