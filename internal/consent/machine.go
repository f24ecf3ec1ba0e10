package consent

import (
	"time"

	"github.com/consent-app/consent_api/internal/store"
)

// Role is the relation of an actor to a consent.
type Role string

const (
	RoleNone      Role = ""
	RoleInitiator Role = "initiator"
	RolePartner   Role = "partner"
)

func roleOf(c store.Consent, actorID int64) Role {
	switch actorID {
	case c.InitiatorID:
		return RoleInitiator
	case c.PartnerID:
		return RolePartner
	default:
		return RoleNone
	}
}

// decide moves a pending consent to a terminal status. Only the partner
// decides.
func decide(c *store.Consent, role Role, to store.ConsentStatus) error {
	if role != RolePartner {
		return ErrUnauthorized
	}
	if c.Status != store.ConsentPending {
		return ErrAlreadyTerminal
	}
	c.Status = to
	return nil
}

// BiometricState is the two-party confirmation progress of a consent,
// tracked independently of its status.
type BiometricState string

const (
	BiometricNone               BiometricState = "none"
	BiometricInitiatorConfirmed BiometricState = "initiator_confirmed"
	BiometricPartnerConfirmed   BiometricState = "partner_confirmed"
	BiometricValidated          BiometricState = "validated"
)

func biometricStateOf(c store.Consent) BiometricState {
	switch {
	case c.BiometricValidated:
		return BiometricValidated
	case c.InitiatorConfirmed:
		return BiometricInitiatorConfirmed
	case c.PartnerConfirmed:
		return BiometricPartnerConfirmed
	default:
		return BiometricNone
	}
}

// confirm records the actor's biometric confirmation and reports whether
// this call completed validation. Repeating a confirmation is a no-op.
func confirm(c *store.Consent, role Role, now time.Time) (bool, error) {
	switch role {
	case RoleInitiator:
		c.InitiatorConfirmed = true
	case RolePartner:
		c.PartnerConfirmed = true
	default:
		return false, ErrUnauthorized
	}

	if c.BiometricValidated || !(c.InitiatorConfirmed && c.PartnerConfirmed) {
		return false, nil
	}
	c.BiometricValidated = true
	c.BiometricValidatedAt = &now
	return true, nil
}

// Visibility controls whether a consent appears in history. A hidden consent
// stays readable by id for the partner.
type Visibility string

const (
	Visible           Visibility = "visible"
	HiddenByInitiator Visibility = "hidden_by_initiator"
)

func visibilityOf(c store.Consent) Visibility {
	if c.DeletedByInitiator {
		return HiddenByInitiator
	}
	return Visible
}

// visibleTo reports whether role may read c by id.
func visibleTo(c store.Consent, role Role) bool {
	switch role {
	case RolePartner:
		return true
	case RoleInitiator:
		return visibilityOf(c) == Visible
	default:
		return false
	}
}

// hide soft-deletes the consent. Only the initiator may hide it.
func hide(c *store.Consent, role Role) error {
	if role != RoleInitiator {
		return ErrUnauthorized
	}
	c.DeletedByInitiator = true
	return nil
}
