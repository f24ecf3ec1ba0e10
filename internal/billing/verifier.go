package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79/webhook"
)

// EventPaymentIntentSucceeded is the only notification type that grants credits.
const EventPaymentIntentSucceeded = "payment_intent.succeeded"

// ErrInvalidSignature is returned when a notification fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is a verified provider notification.
type Event struct {
	ID              string
	Type            string
	PaymentIntentID string
	Metadata        map[string]string
}

// Verifier authenticates raw notification bodies.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}

// StripeVerifier checks the Stripe-Signature header against the endpoint
// secret.
type StripeVerifier struct {
	secret string
}

// NewStripeVerifier builds a verifier for the webhook endpoint secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

type paymentIntentObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// Verify authenticates payload and extracts the payment intent it refers to.
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && evt.Data != nil {
		var obj paymentIntentObject
		if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
			return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		out.PaymentIntentID = obj.ID
		out.Metadata = obj.Metadata
	}
	return out, nil
}
