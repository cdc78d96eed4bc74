package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

type fakeSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	return f.session, f.err
}

func newTestProvider(t *testing.T, sessions *fakeSessions) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: "whsec_test",
		Sessions:      sessions,
		Clock:         func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestCreateCheckoutSessionUsesPriceAndReference(t *testing.T) {
	sessions := &fakeSessions{session: &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1", ExpiresAt: 1735787045}}
	provider := newTestProvider(t, sessions)

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutRequest{
		Reference:      "draft1",
		PriceID:        "price_123",
		SuccessURL:     "https://fit.example/ok",
		CancelURL:      "https://fit.example/cancel",
		Metadata:       map[string]string{"tempTrainerId": "draft1"},
		IdempotencyKey: "checkout:draft1",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.ID != "cs_1" || session.URL == "" || session.Provider != "stripe" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(time.Unix(1735787045, 0)) {
		t.Fatalf("unexpected expiry %s", session.ExpiresAt)
	}

	p := sessions.params
	if stripe.StringValue(p.ClientReferenceID) != "draft1" {
		t.Fatalf("client reference not set: %v", p.ClientReferenceID)
	}
	if len(p.LineItems) != 1 || stripe.StringValue(p.LineItems[0].Price) != "price_123" || p.LineItems[0].PriceData != nil {
		t.Fatalf("expected price line item, got %+v", p.LineItems)
	}
	if p.Metadata["tempTrainerId"] != "draft1" || p.PaymentIntentData.Metadata["tempTrainerId"] != "draft1" {
		t.Fatalf("metadata not propagated: %+v", p.Metadata)
	}
	if p.IdempotencyKey == nil || *p.IdempotencyKey != "checkout:draft1" {
		t.Fatalf("idempotency key not set")
	}
}

func TestCreateCheckoutSessionInlineAmount(t *testing.T) {
	sessions := &fakeSessions{session: &stripe.CheckoutSession{ID: "cs_2"}}
	provider := newTestProvider(t, sessions)

	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutRequest{Reference: "d", Amount: 4900, Currency: "EUR"}); err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	data := sessions.params.LineItems[0].PriceData
	if data == nil || stripe.Int64Value(data.UnitAmount) != 4900 || stripe.StringValue(data.Currency) != "eur" {
		t.Fatalf("unexpected price data %+v", data)
	}

	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutRequest{Reference: "d"}); err == nil {
		t.Fatal("expected error without price or amount")
	}
	sessions.err = errors.New("stripe down")
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutRequest{Reference: "d", Amount: 1}); err == nil {
		t.Fatal("expected stripe error to surface")
	}
}

func signedEvent(t *testing.T, secret, eventType, object string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`, stripe.APIVersion, eventType, object))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret, Timestamp: time.Now()})
	return signed.Payload, signed.Header
}

func TestVerifyCheckoutCompleted(t *testing.T) {
	provider := newTestProvider(t, &fakeSessions{})
	payload, header := signedEvent(t, "whsec_test", "checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","client_reference_id":"draft1","payment_status":"paid","amount_total":4900,"currency":"eur","payment_intent":"pi_9","metadata":{"tempTrainerId":"draft1"}}`)

	completed, err := provider.VerifyCheckoutCompleted(payload, header)
	if err != nil {
		t.Fatalf("VerifyCheckoutCompleted: %v", err)
	}
	if completed.Reference != "draft1" || completed.PaymentReference != "pi_9" || !completed.Paid {
		t.Fatalf("unexpected checkout %+v", completed)
	}
	if completed.Amount != 4900 || completed.Currency != "eur" || completed.EventID != "evt_1" {
		t.Fatalf("unexpected amounts %+v", completed)
	}
}

func TestVerifyCheckoutCompletedRejectsForgery(t *testing.T) {
	provider := newTestProvider(t, &fakeSessions{})
	payload, header := signedEvent(t, "whsec_other", "checkout.session.completed", `{"id":"cs_1"}`)

	if _, err := provider.VerifyCheckoutCompleted(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyCheckoutCompletedIgnoresOtherEvents(t *testing.T) {
	provider := newTestProvider(t, &fakeSessions{})
	payload, header := signedEvent(t, "whsec_test", "customer.created", `{"id":"cus_1"}`)

	if _, err := provider.VerifyCheckoutCompleted(payload, header); !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestVerifyCheckoutCompletedFallsBackToMetadataReference(t *testing.T) {
	provider := newTestProvider(t, &fakeSessions{})
	payload, header := signedEvent(t, "whsec_test", "checkout.session.completed",
		`{"id":"cs_3","object":"checkout.session","payment_status":"unpaid","metadata":{"tempTrainerId":"draft7"}}`)

	completed, err := provider.VerifyCheckoutCompleted(payload, header)
	if err != nil {
		t.Fatalf("VerifyCheckoutCompleted: %v", err)
	}
	if completed.Reference != "draft7" || completed.Paid || completed.PaymentReference != "cs_3" {
		t.Fatalf("unexpected checkout %+v", completed)
	}
}
