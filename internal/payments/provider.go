// Package payments creates hosted checkout sessions for draft activation and
// verifies the provider's completion callbacks.
package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrIgnoredEvent marks verified events this service does not act on.
	ErrIgnoredEvent = errors.New("payments: event ignored")
)

// CheckoutRequest describes a one-off payment for a single draft.
type CheckoutRequest struct {
	// Reference is echoed back on completion; it carries the draft id.
	Reference      string
	PriceID        string
	Amount         int64
	Currency       string
	ProductName    string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession is the hosted payment page returned to the client.
type CheckoutSession struct {
	ID        string
	Provider  string
	URL       string
	ExpiresAt time.Time
}

// CompletedCheckout is a verified "checkout finished" notification.
type CompletedCheckout struct {
	EventID   string
	SessionID string
	Reference string
	// PaymentReference identifies the captured payment (intent id when known).
	PaymentReference string
	Paid             bool
	Amount           int64
	Currency         string
	Metadata         map[string]string
}

// Provider is the checkout half of a PSP adapter.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

// WebhookVerifier authenticates and decodes PSP callbacks.
type WebhookVerifier interface {
	// VerifyCheckoutCompleted returns ErrInvalidSignature for forged payloads and
	// ErrIgnoredEvent for authentic events of other types.
	VerifyCheckoutCompleted(payload []byte, signatureHeader string) (CompletedCheckout, error)
}
