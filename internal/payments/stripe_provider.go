package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const (
	stripeProviderName      = "stripe"
	defaultWebhookTolerance = 5 * time.Minute
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey           string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Backends         *stripe.Backends
	Logger           StripeLogger
	Clock            func() time.Time
	Sessions         stripeSessionAPI
}

// StripeProvider implements Provider and WebhookVerifier with Stripe Checkout.
type StripeProvider struct {
	sessions      stripeSessionAPI
	webhookSecret string
	tolerance     time.Duration
	clock         func() time.Time
	logger        StripeLogger
}

var (
	_ Provider        = (*StripeProvider)(nil)
	_ WebhookVerifier = (*StripeProvider)(nil)
)

// NewStripeProvider constructs a Stripe provider. Without a webhook secret the
// provider can still create sessions but rejects every callback.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	sessions := cfg.Sessions
	if sessions == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = defaultWebhookTolerance
	}

	return &StripeProvider{
		sessions:      sessions,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		tolerance:     tolerance,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a payment-mode Checkout session. A configured
// price id wins over the inline amount.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return CheckoutSession{}, errors.New("stripe: checkout reference is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = maps.Clone(req.Metadata)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: maps.Clone(req.Metadata),
		}
	}

	line := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if price := strings.TrimSpace(req.PriceID); price != "" {
		line.Price = stripe.String(price)
	} else {
		if req.Amount <= 0 {
			return CheckoutSession{}, errors.New("stripe: price id or positive amount is required")
		}
		line.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(defaultString(req.Currency, "eur"))),
			UnitAmount: stripe.Int64(req.Amount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(defaultString(req.ProductName, "Trainer profile activation")),
			},
		}
	}
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{line}

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"reference": req.Reference,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return CheckoutSession{
		ID:        session.ID,
		Provider:  stripeProviderName,
		URL:       session.URL,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyCheckoutCompleted checks the Stripe-Signature header and decodes
// checkout.session.completed events. The endpoint's API version may lag the
// library's, so the version check is skipped; only session fields that are
// stable across versions are read.
func (p *StripeProvider) VerifyCheckoutCompleted(payload []byte, signatureHeader string) (CompletedCheckout, error) {
	if p.webhookSecret == "" {
		return CompletedCheckout{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return CompletedCheckout{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted || event.Data == nil {
		return CompletedCheckout{EventID: event.ID}, ErrIgnoredEvent
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return CompletedCheckout{}, fmt.Errorf("stripe: decode checkout session: %w", err)
	}

	reference := strings.TrimSpace(session.ClientReferenceID)
	if reference == "" {
		reference = strings.TrimSpace(session.Metadata["tempTrainerId"])
	}
	paymentRef := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		paymentRef = session.PaymentIntent.ID
	}
	return CompletedCheckout{
		EventID:          event.ID,
		SessionID:        session.ID,
		Reference:        reference,
		PaymentReference: paymentRef,
		Paid:             session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:           session.AmountTotal,
		Currency:         strings.ToLower(string(session.Currency)),
		Metadata:         session.Metadata,
	}, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
