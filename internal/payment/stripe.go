// internal/payment/stripe.go
package payment

import (
	"fmt"

	"github.com/stripe/stripe-go/v72"
	portalsession "github.com/stripe/stripe-go/v72/billingportal/session"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/customer"
	"github.com/stripe/stripe-go/v72/sub"
	"github.com/stripe/stripe-go/v72/webhook"
)

type StripeConfig struct {
	SecretKey  string
	WebhookKey string
	PriceID    string
}

// StripeClient talks to the Stripe API. It implements Gateway.
type StripeClient struct {
	secretKey     string
	webhookSecret string
	priceID       string
}

// NewStripeClient sets the package-level stripe.Key once. Request paths only
// read it.
func NewStripeClient(config StripeConfig) *StripeClient {
	if config.SecretKey != "" {
		stripe.Key = config.SecretKey
	}

	return &StripeClient{
		secretKey:     config.SecretKey,
		webhookSecret: config.WebhookKey,
		priceID:       config.PriceID,
	}
}

func (s *StripeClient) ensureKey() error {
	if s.secretKey == "" {
		return ErrNotConfigured
	}
	return nil
}

func (s *StripeClient) CreateCustomer(userID, email string) (string, error) {
	if err := s.ensureKey(); err != nil {
		return "", err
	}

	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("userId", userID)

	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return c.ID, nil
}

// CreateCheckoutSession opens a subscription checkout for the configured price.
func (s *StripeClient) CreateCheckoutSession(customerID, userID, successURL, cancelURL string) (string, string, error) {
	if err := s.ensureKey(); err != nil {
		return "", "", err
	}
	if s.priceID == "" {
		return "", "", fmt.Errorf("price id: %w", ErrNotConfigured)
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
	}
	params.AddMetadata("userId", userID)

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess.ID, sess.URL, nil
}

func (s *StripeClient) CreatePortalSession(customerID, returnURL string) (string, error) {
	if err := s.ensureKey(); err != nil {
		return "", err
	}

	ps, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create billing portal session: %w", err)
	}
	return ps.URL, nil
}

func (s *StripeClient) GetSubscription(id string) (*stripe.Subscription, error) {
	if err := s.ensureKey(); err != nil {
		return nil, err
	}
	subscription, err := sub.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", id, err)
	}
	return subscription, nil
}

func (s *StripeClient) VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("webhook secret: %w", ErrNotConfigured)
	}
	return webhook.ConstructEvent(payload, sig, s.webhookSecret)
}
