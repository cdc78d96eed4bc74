package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/payments"
	"github.com/fitmarket/api/internal/platform/httpx"
	"github.com/fitmarket/api/internal/platform/requestctx"
	"github.com/fitmarket/api/internal/services"
)

const (
	maxWebhookBodySize = 256 * 1024
	stripeSignature    = "Stripe-Signature"
)

// WebhookHandlers turns verified payment callbacks into draft promotions.
type WebhookHandlers struct {
	trainers services.TrainerService
	verifier payments.WebhookVerifier
	relay    []func(http.Handler) http.Handler
}

// WebhookOption customises WebhookHandlers.
type WebhookOption func(*WebhookHandlers)

// WithRelayMiddlewares guards the signed payment relay endpoint, typically
// with an HMAC validator.
func WithRelayMiddlewares(mw ...func(http.Handler) http.Handler) WebhookOption {
	return func(h *WebhookHandlers) {
		h.relay = append(h.relay, mw...)
	}
}

// NewWebhookHandlers constructs WebhookHandlers.
func NewWebhookHandlers(trainers services.TrainerService, verifier payments.WebhookVerifier, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{trainers: trainers, verifier: verifier}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
	r.Group(func(relay chi.Router) {
		for _, mw := range h.relay {
			if mw != nil {
				relay.Use(mw)
			}
		}
		relay.Post("/payments/confirmed", h.handlePaymentConfirmed)
	})
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	Status    string `json:"status"`
	TrainerID string `json:"trainerId,omitempty"`
}

type paymentConfirmedRequest struct {
	DraftID          string `json:"draftId"`
	PaymentReference string `json:"paymentReference"`
	Provider         string `json:"provider"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil || h.verifier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment webhooks not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := httpx.ReadBody(r, maxWebhookBodySize)
	if err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}

	checkout, err := h.verifier.VerifyCheckoutCompleted(body, r.Header.Get(stripeSignature))
	switch {
	case errors.Is(err, payments.ErrIgnoredEvent):
		httpx.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: "ignored"})
		return
	case errors.Is(err, payments.ErrInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "webhook signature verification failed", http.StatusBadRequest))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "webhook payload could not be decoded", http.StatusBadRequest))
		return
	}

	if !checkout.Paid || strings.TrimSpace(checkout.Reference) == "" {
		requestctx.Logger(ctx).Info("stripe checkout skipped",
			zap.String("session_id", checkout.SessionID),
			zap.Bool("paid", checkout.Paid),
			zap.String("reference", checkout.Reference))
		httpx.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: "ignored"})
		return
	}

	h.promote(w, r, checkout.Reference, services.PaymentConfirmation{
		Reference: checkout.PaymentReference,
		Provider:  "stripe",
		Amount:    checkout.Amount,
		Currency:  checkout.Currency,
	})
}

func (h *WebhookHandlers) handlePaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment webhooks not configured", http.StatusServiceUnavailable))
		return
	}

	var req paymentConfirmedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}
	draftID := strings.TrimSpace(req.DraftID)
	reference := strings.TrimSpace(req.PaymentReference)
	if draftID == "" || reference == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "draftId and paymentReference are required", http.StatusBadRequest))
		return
	}

	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = "relay"
	}
	h.promote(w, r, draftID, services.PaymentConfirmation{
		Reference: reference,
		Provider:  provider,
		Amount:    req.Amount,
		Currency:  strings.ToLower(strings.TrimSpace(req.Currency)),
	})
}

// promote acknowledges every outcome a retry cannot change with 200 so the
// sender stops redelivering. Only transient failures answer 5xx.
func (h *WebhookHandlers) promote(w http.ResponseWriter, r *http.Request, draftID string, confirmation services.PaymentConfirmation) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx).With(
		zap.String("draft_id", draftID),
		zap.String("provider", confirmation.Provider),
		zap.String("payment_reference", confirmation.Reference))

	trainer, err := h.trainers.Promote(ctx, draftID, confirmation)
	var promoted *services.AlreadyPromotedError
	switch {
	case err == nil:
		logger.Info("draft promoted", zap.String("trainer_id", trainer.ID))
		httpx.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: string(domain.TrainerStatusActive), TrainerID: trainer.ID})
	case errors.As(err, &promoted):
		httpx.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: "already_promoted", TrainerID: promoted.TrainerID})
	case errors.Is(err, services.ErrTrainerExpired), errors.Is(err, services.ErrTrainerNotFound):
		logger.Warn("paid draft could not be promoted", zap.Error(err))
		httpx.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: "rejected"})
	default:
		logger.Error("draft promotion failed", zap.Error(err))
		writeServiceError(ctx, w, err)
	}
}
