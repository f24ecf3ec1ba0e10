package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// ephemeralKeyAPIVersion is the API version the mobile payment sheet expects.
const ephemeralKeyAPIVersion = "2022-11-15"

// Metadata keys carried on every payment intent and read back from the
// confirmation notification.
const (
	MetadataUserID       = "userId"
	MetadataPackQuantity = "packQuantity"
)

// PaymentIntentInput describes a payment intent to create.
type PaymentIntentInput struct {
	CustomerID     string
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntent is the provider's handle on a pending payment.
type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// Provider represents the external payment processor.
type Provider interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (string, error)
	CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (PaymentIntent, error)
}

// StripeProvider talks to the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider builds a provider from a secret key.
func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

// CreateCustomer creates a Stripe customer for email.
func (p *StripeProvider) CreateCustomer(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	cus, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cus.ID, nil
}

// CreateEphemeralKey issues a short-lived key for the mobile payment sheet.
func (p *StripeProvider) CreateEphemeralKey(ctx context.Context, customerID string) (string, error) {
	params := &stripe.EphemeralKeyParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(ephemeralKeyAPIVersion),
	}
	params.Context = ctx
	key, err := p.api.EphemeralKeys.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe ephemeral key: %w", err)
	}
	return key.Secret, nil
}

// CreatePaymentIntent creates a PaymentIntent with automatic payment methods.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(input.AmountCents),
		Currency: stripe.String(input.Currency),
		Customer: stripe.String(input.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("create stripe payment intent: %w", err)
	}
	return PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// StaticProvider simulates the payment processor with synthetic ids. Used
// in development when no Stripe key is configured, and in tests.
type StaticProvider struct {
	mu      sync.Mutex
	intents []PaymentIntentInput
}

// CreateCustomer returns a synthetic customer id.
func (p *StaticProvider) CreateCustomer(_ context.Context, _ string) (string, error) {
	return "cus_" + uuid.NewString(), nil
}

// CreateEphemeralKey returns a synthetic key secret.
func (p *StaticProvider) CreateEphemeralKey(_ context.Context, _ string) (string, error) {
	return "ek_test_" + uuid.NewString(), nil
}

// CreatePaymentIntent records the input and returns a synthetic intent.
func (p *StaticProvider) CreatePaymentIntent(_ context.Context, input PaymentIntentInput) (PaymentIntent, error) {
	p.mu.Lock()
	p.intents = append(p.intents, input)
	p.mu.Unlock()
	id := "pi_" + uuid.NewString()
	return PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

// Intents returns the intents created so far.
func (p *StaticProvider) Intents() []PaymentIntentInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PaymentIntentInput(nil), p.intents...)
}
