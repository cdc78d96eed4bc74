package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fitmarket/api/internal/payments"
	"github.com/fitmarket/api/internal/platform/auth"
	"github.com/fitmarket/api/internal/services"
)

func TestWebhookHandlers_StripePromotesPaidCheckout(t *testing.T) {
	var gotDraft string
	var gotConfirmation services.PaymentConfirmation
	svc := &stubTrainerService{
		promoteFn: func(_ context.Context, id string, c services.PaymentConfirmation) (services.Trainer, error) {
			gotDraft, gotConfirmation = id, c
			return services.Trainer{ID: "trn_1"}, nil
		},
	}
	verifier := &stubVerifier{checkout: payments.CompletedCheckout{
		SessionID:        "cs_1",
		Reference:        "draft-1",
		PaymentReference: "pi_1",
		Paid:             true,
		Amount:           4900,
		Currency:         "eur",
	}}
	h := mount(NewWebhookHandlers(svc, verifier).Routes)

	rr := serve(t, h, http.MethodPost, "/stripe", `{"id":"evt_1"}`, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if verifier.header != "t=1,v1=abc" || string(verifier.payload) != `{"id":"evt_1"}` {
		t.Fatalf("verifier did not see raw request: %q %q", verifier.header, verifier.payload)
	}
	if gotDraft != "draft-1" || gotConfirmation.Reference != "pi_1" || gotConfirmation.Provider != "stripe" || gotConfirmation.Amount != 4900 {
		t.Fatalf("unexpected promotion %s %+v", gotDraft, gotConfirmation)
	}
	var body webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TrainerID != "trn_1" || body.Status != "active" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestWebhookHandlers_StripeOutcomes(t *testing.T) {
	promote := func(_ context.Context, id string, _ services.PaymentConfirmation) (services.Trainer, error) {
		switch id {
		case "promoted":
			return services.Trainer{}, &services.AlreadyPromotedError{DraftID: id, TrainerID: "trn_9"}
		case "expired":
			return services.Trainer{}, fmt.Errorf("promote: %w", services.ErrTrainerExpired)
		case "flaky":
			return services.Trainer{}, fmt.Errorf("%w: deadline", services.ErrTrainerUnavailable)
		}
		t.Fatalf("unexpected promotion of %s", id)
		return services.Trainer{}, nil
	}

	cases := []struct {
		name     string
		checkout payments.CompletedCheckout
		err      error
		status   int
		outcome  string
	}{
		{name: "bad signature", err: payments.ErrInvalidSignature, status: http.StatusBadRequest},
		{name: "other event", err: payments.ErrIgnoredEvent, status: http.StatusOK, outcome: "ignored"},
		{name: "unpaid", checkout: payments.CompletedCheckout{Reference: "draft-1"}, status: http.StatusOK, outcome: "ignored"},
		{name: "no reference", checkout: payments.CompletedCheckout{Paid: true}, status: http.StatusOK, outcome: "ignored"},
		{name: "already promoted", checkout: payments.CompletedCheckout{Reference: "promoted", Paid: true}, status: http.StatusOK, outcome: "already_promoted"},
		{name: "expired", checkout: payments.CompletedCheckout{Reference: "expired", Paid: true}, status: http.StatusOK, outcome: "rejected"},
		{name: "storage down", checkout: payments.CompletedCheckout{Reference: "flaky", Paid: true}, status: http.StatusServiceUnavailable},
		{name: "decode failure", err: errors.New("stripe: decode checkout session"), status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mount(NewWebhookHandlers(&stubTrainerService{promoteFn: promote}, &stubVerifier{checkout: tc.checkout, err: tc.err}).Routes)
			rr := serve(t, h, http.MethodPost, "/stripe", `{}`, nil)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.outcome == "" {
				return
			}
			var body webhookResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.outcome || !body.Received {
				t.Fatalf("expected outcome %s, got %+v", tc.outcome, body)
			}
		})
	}
}

func TestWebhookHandlers_PaymentRelayRequiresSignature(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var gotDraft string
	var gotConfirmation services.PaymentConfirmation
	svc := &stubTrainerService{
		promoteFn: func(_ context.Context, id string, c services.PaymentConfirmation) (services.Trainer, error) {
			gotDraft, gotConfirmation = id, c
			return services.Trainer{ID: "trn_2"}, nil
		},
	}
	validator := auth.NewHMACValidator(map[string]string{"payments": "relay-secret"}, auth.NewInMemoryNonceStore(), auth.WithHMACClock(func() time.Time { return now }))
	r := chi.NewRouter()
	r.Route("/webhooks", NewWebhookHandlers(svc, nil, WithRelayMiddlewares(validator.RequireHMAC("payments"))).Routes)

	body := `{"draftId":"draft-7","paymentReference":"pay_7","provider":"paypal","amount":4900,"currency":"EUR"}`

	unsigned := httptest.NewRequest(http.MethodPost, "/webhooks/payments/confirmed", strings.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, unsigned)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rr.Code)
	}

	signed := httptest.NewRequest(http.MethodPost, "/webhooks/payments/confirmed", strings.NewReader(body))
	for k, v := range auth.SignRequest("relay-secret", http.MethodPost, "/webhooks/payments/confirmed", []byte(body), now, "nonce-1") {
		signed.Header[k] = v
	}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, signed)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotDraft != "draft-7" || gotConfirmation.Provider != "paypal" || gotConfirmation.Currency != "eur" {
		t.Fatalf("unexpected promotion %s %+v", gotDraft, gotConfirmation)
	}
}

func TestWebhookHandlers_PaymentRelayValidatesBody(t *testing.T) {
	h := mount(NewWebhookHandlers(&stubTrainerService{}, nil).Routes)
	rr := serve(t, h, http.MethodPost, "/payments/confirmed", `{"draftId":"draft-7"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
