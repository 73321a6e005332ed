package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v72"

	"minuto/internal/models"
	"minuto/internal/progress"
	"minuto/pkg/logger"
)

// ErrNotConfigured is returned when a Stripe key or price is missing.
var ErrNotConfigured = errors.New("stripe not configured")

// Gateway is the part of Stripe the service needs.
type Gateway interface {
	CreateCustomer(userID, email string) (string, error)
	CreateCheckoutSession(customerID, userID, successURL, cancelURL string) (id, url string, err error)
	CreatePortalSession(customerID, returnURL string) (string, error)
	GetSubscription(id string) (*stripe.Subscription, error)
	VerifyWebhookSignature(payload []byte, sig string) (stripe.Event, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	UserIDByCustomer(ctx context.Context, customerID string) (string, error)
	ApplySubscription(ctx context.Context, userID string, update models.SubscriptionUpdate) error
}

// Mailer tells a user their renewal failed.
type Mailer interface {
	SendPaymentFailed(ctx context.Context, to string) error
}

type Service struct {
	gateway Gateway
	users   UserStore
	mailer  Mailer
	baseURL string
	logger  *logger.Logger
}

func NewService(gateway Gateway, users UserStore, mailer Mailer, baseURL string, l *logger.Logger) *Service {
	return &Service{
		gateway: gateway,
		users:   users,
		mailer:  mailer,
		baseURL: baseURL,
		logger:  l.Named("payment"),
	}
}

// Checkout returns where to send the user: the billing portal for members,
// a new subscription checkout otherwise.
func (s *Service) Checkout(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("checkout for %s: %w", userID, err)
	}

	if user.IsProMember && user.StripeCustomerID != "" {
		return s.gateway.CreatePortalSession(user.StripeCustomerID, s.baseURL+"/configuracoes")
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		if customerID, err = s.gateway.CreateCustomer(user.ID, user.Email); err != nil {
			return "", err
		}
		if err := s.users.SetStripeCustomer(ctx, user.ID, customerID); err != nil {
			return "", fmt.Errorf("save stripe customer: %w", err)
		}
	}

	id, url, err := s.gateway.CreateCheckoutSession(customerID, user.ID,
		s.baseURL+"/planos?success=true", s.baseURL+"/planos?canceled=true")
	if err != nil {
		return "", err
	}

	s.logger.Infow("Checkout session created", "user_id", user.ID, "session_id", id)
	return url, nil
}

type Status struct {
	IsProMember      bool       `json:"is_pro_member"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("subscription status for %s: %w", userID, err)
	}
	return &Status{IsProMember: user.IsProMember, CurrentPeriodEnd: user.StripeCurrentPeriodEnd}, nil
}

// Verify checks the webhook signature and decodes the event.
func (s *Service) Verify(payload []byte, sig string) (stripe.Event, error) {
	return s.gateway.VerifyWebhookSignature(payload, sig)
}

// HandleEvent syncs the subscription state of a user with a Stripe event.
// Events for unknown users are logged and dropped.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return fmt.Errorf("event %s has no data", event.ID)
	}

	var err error
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("error parsing checkout session: %w", err)
		}
		err = s.checkoutCompleted(ctx, &cs)

	case "customer.subscription.updated", "customer.subscription.deleted":
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return fmt.Errorf("error parsing subscription: %w", err)
		}
		err = s.subscriptionChanged(ctx, &subscription, event.Type == "customer.subscription.deleted")

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("error parsing invoice: %w", err)
		}
		err = s.paymentFailed(ctx, &invoice)

	default:
		s.logger.Debugw("Unhandled webhook event", "type", event.Type)
		return nil
	}

	if errors.Is(err, progress.ErrNotFound) {
		s.logger.Warnw("Webhook event for unknown user", "type", event.Type, "error", err)
		return nil
	}
	return err
}

func (s *Service) checkoutCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	userID := cs.Metadata["userId"]
	if userID == "" {
		userID = cs.ClientReferenceID
	}
	if userID == "" {
		s.logger.Warnw("Checkout session without user id", "session_id", cs.ID)
		return nil
	}

	update := models.SubscriptionUpdate{IsProMember: true}
	if cs.Customer != nil {
		update.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil && cs.Subscription.ID != "" {
		subscription, err := s.gateway.GetSubscription(cs.Subscription.ID)
		if err != nil {
			return err
		}
		fillSubscription(&update, subscription)
	}

	if err := s.users.ApplySubscription(ctx, userID, update); err != nil {
		return fmt.Errorf("activate %s: %w", userID, err)
	}
	s.logger.Infow("User activated as pro", "user_id", userID)
	return nil
}

func (s *Service) subscriptionChanged(ctx context.Context, subscription *stripe.Subscription, deleted bool) error {
	if subscription.Customer == nil {
		return fmt.Errorf("subscription %s has no customer", subscription.ID)
	}
	userID, err := s.users.UserIDByCustomer(ctx, subscription.Customer.ID)
	if err != nil {
		return err
	}

	var update models.SubscriptionUpdate
	if !deleted {
		update.IsProMember = subscription.Status == stripe.SubscriptionStatusActive ||
			subscription.Status == stripe.SubscriptionStatusTrialing
		fillSubscription(&update, subscription)
	}

	if err := s.users.ApplySubscription(ctx, userID, update); err != nil {
		return fmt.Errorf("update subscription of %s: %w", userID, err)
	}
	s.logger.Infow("Subscription synced", "user_id", userID, "status", subscription.Status, "deleted", deleted)
	return nil
}

func (s *Service) paymentFailed(ctx context.Context, invoice *stripe.Invoice) error {
	if invoice.Customer == nil {
		return fmt.Errorf("invoice %s has no customer", invoice.ID)
	}
	userID, err := s.users.UserIDByCustomer(ctx, invoice.Customer.ID)
	if err != nil {
		return err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Warnw("Subscription payment failed", "user_id", user.ID)
	if user.Email == "" {
		return nil
	}
	if err := s.mailer.SendPaymentFailed(ctx, user.Email); err != nil {
		s.logger.Errorw("Failed to send payment failure email", "user_id", user.ID, "error", err)
	}
	return nil
}

func fillSubscription(update *models.SubscriptionUpdate, subscription *stripe.Subscription) {
	update.SubscriptionID = subscription.ID
	if subscription.Items != nil && len(subscription.Items.Data) > 0 && subscription.Items.Data[0].Price != nil {
		update.PriceID = subscription.Items.Data[0].Price.ID
	}
	if subscription.CurrentPeriodEnd > 0 {
		end := time.Unix(subscription.CurrentPeriodEnd, 0).UTC()
		update.CurrentPeriodEnd = &end
	}
	if update.CustomerID == "" && subscription.Customer != nil {
		update.CustomerID = subscription.Customer.ID
	}
}
