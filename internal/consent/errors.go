package consent

import "errors"

var (
	// ErrNotFound is returned for unknown consents and for consents the
	// caller may not see.
	ErrNotFound = errors.New("consent not found")

	// ErrUnauthorized is returned when the actor's role does not allow the
	// operation.
	ErrUnauthorized = errors.New("not allowed to act on this consent")

	// ErrAlreadyTerminal is returned when a decision is made on a consent
	// that is no longer pending.
	ErrAlreadyTerminal = errors.New("consent already answered")

	// ErrPartnerNotFound is returned when no user has the partner email.
	ErrPartnerNotFound = errors.New("partner not found")

	// ErrNoEntitlement is returned when the initiator has neither an active
	// subscription nor a credit.
	ErrNoEntitlement = errors.New("no credit or active subscription")

	// ErrSelfConsent is returned when initiator and partner are the same user.
	ErrSelfConsent = errors.New("cannot create a consent with yourself")

	// ErrInvalidPayload is returned when the payload has no message.
	ErrInvalidPayload = errors.New("payload message is required")
)
