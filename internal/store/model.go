package store

import (
	"time"

	"github.com/google/uuid"
)

// ConsentStatus is the lifecycle status of a consent. PENDING is the only
// non-terminal value.
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "PENDING"
	ConsentAccepted ConsentStatus = "ACCEPTED"
	ConsentRefused  ConsentStatus = "REFUSED"
)

// Terminal reports whether no further status transition is allowed.
func (s ConsentStatus) Terminal() bool {
	return s == ConsentAccepted || s == ConsentRefused
}

// PaymentStatus records how the initiator paid for a consent.
type PaymentStatus string

const (
	// PaymentPending marks a consent paid with a prepaid credit.
	PaymentPending PaymentStatus = "PENDING"
	// PaymentCompleted marks a consent covered by an active subscription.
	PaymentCompleted PaymentStatus = "COMPLETED"
)

// User is the identity anchor. The ledger only reads ID, the subscription
// fields and StripeCustomerID.
type User struct {
	ID                  int64
	Email               string
	PasswordHash        []byte
	FirstName           string
	LastName            string
	IsSubscribed        bool
	SubscriptionEndDate *time.Time
	StripeCustomerID    string
	CreatedAt           time.Time
}

// SubscriptionActive reports whether the subscription grants unmetered
// consents at the given instant.
func (u User) SubscriptionActive(now time.Time) bool {
	if !u.IsSubscribed {
		return false
	}
	return u.SubscriptionEndDate == nil || u.SubscriptionEndDate.After(now)
}

// CreditBalance is the per-user prepaid credit counter.
type CreditBalance struct {
	UserID          int64
	Quantity        int
	LastPurchasedAt *time.Time
}

// PaymentEvent records a payment confirmation that has been applied to a
// balance. PaymentID is unique.
type PaymentEvent struct {
	PaymentID string
	EventID   string
	UserID    int64
	Quantity  int
	AppliedAt time.Time
}

// Consent is the persisted two-party record. Payload is sealed ciphertext.
type Consent struct {
	ID                   uuid.UUID
	InitiatorID          int64
	PartnerID            int64
	Payload              []byte
	Status               ConsentStatus
	PaymentStatus        PaymentStatus
	InitiatorConfirmed   bool
	PartnerConfirmed     bool
	BiometricValidated   bool
	BiometricValidatedAt *time.Time
	DeletedByInitiator   bool
	CreatedAt            time.Time
}
