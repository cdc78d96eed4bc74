package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/payments"
	"github.com/fitmarket/api/internal/platform/auth"
	"github.com/fitmarket/api/internal/services"
)

type stubTrainerService struct {
	createFn   func(ctx context.Context, form services.TrainerForm) (services.CreateDraftResult, error)
	readFn     func(ctx context.Context, id, token string) (services.DraftView, error)
	editFn     func(ctx context.Context, id, token string, patch services.TrainerContent) (services.TempTrainer, error)
	promoteFn  func(ctx context.Context, id string, confirmation services.PaymentConfirmation) (services.Trainer, error)
	checkoutFn func(ctx context.Context, id, token string) (services.CheckoutResult, error)
	getFn      func(ctx context.Context, id string) (services.Trainer, error)
	listFn     func(ctx context.Context, filter services.TrainerListFilter) (domain.CursorPage[services.Trainer], error)
}

func (s *stubTrainerService) Create(ctx context.Context, form services.TrainerForm) (services.CreateDraftResult, error) {
	return s.createFn(ctx, form)
}

func (s *stubTrainerService) Read(ctx context.Context, id, token string) (services.DraftView, error) {
	return s.readFn(ctx, id, token)
}

func (s *stubTrainerService) Edit(ctx context.Context, id, token string, patch services.TrainerContent) (services.TempTrainer, error) {
	return s.editFn(ctx, id, token, patch)
}

func (s *stubTrainerService) Promote(ctx context.Context, id string, confirmation services.PaymentConfirmation) (services.Trainer, error) {
	return s.promoteFn(ctx, id, confirmation)
}

func (s *stubTrainerService) StartCheckout(ctx context.Context, id, token string) (services.CheckoutResult, error) {
	return s.checkoutFn(ctx, id, token)
}

func (s *stubTrainerService) GetTrainer(ctx context.Context, id string) (services.Trainer, error) {
	return s.getFn(ctx, id)
}

func (s *stubTrainerService) ListTrainers(ctx context.Context, filter services.TrainerListFilter) (domain.CursorPage[services.Trainer], error) {
	return s.listFn(ctx, filter)
}

type stubLeadService struct {
	captureFn func(ctx context.Context, form services.LeadForm) (services.Lead, error)
	listFn    func(ctx context.Context, filter services.LeadListFilter) (domain.CursorPage[services.Lead], error)
	convertFn func(ctx context.Context, leadID string) services.ConversionResult
}

func (s *stubLeadService) Capture(ctx context.Context, form services.LeadForm) (services.Lead, error) {
	return s.captureFn(ctx, form)
}

func (s *stubLeadService) List(ctx context.Context, filter services.LeadListFilter) (domain.CursorPage[services.Lead], error) {
	return s.listFn(ctx, filter)
}

func (s *stubLeadService) Convert(ctx context.Context, leadID string) services.ConversionResult {
	return s.convertFn(ctx, leadID)
}

type stubVerifier struct {
	checkout payments.CompletedCheckout
	err      error
	payload  []byte
	header   string
}

func (s *stubVerifier) VerifyCheckoutCompleted(payload []byte, header string) (payments.CompletedCheckout, error) {
	s.payload = payload
	s.header = header
	return s.checkout, s.err
}

type stubTokenVerifier struct {
	roles map[string][]any
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	roles, ok := s.roles[idToken]
	if !ok {
		return nil, errInvalidToken
	}
	return &firebaseauth.Token{UID: "uid-" + idToken, Claims: map[string]any{"role": roles}}, nil
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

const errInvalidToken = tokenError("token rejected")

// newTestAuthenticator accepts the bearer tokens "admin-token" and "editor-token".
func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&stubTokenVerifier{roles: map[string][]any{
		"admin-token":  {auth.RoleAdmin},
		"editor-token": {auth.RoleEditor},
	}})
}

func mount(registrar func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	registrar(r)
	return r
}

func serve(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var (
	_ services.TrainerService  = (*stubTrainerService)(nil)
	_ services.LeadService     = (*stubLeadService)(nil)
	_ payments.WebhookVerifier = (*stubVerifier)(nil)
)
