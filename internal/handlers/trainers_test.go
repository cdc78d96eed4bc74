package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/services"
)

func TestTrainerHandlers_CreateDraft(t *testing.T) {
	expires := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	var got services.TrainerForm
	svc := &stubTrainerService{
		createFn: func(_ context.Context, form services.TrainerForm) (services.CreateDraftResult, error) {
			got = form
			return services.CreateDraftResult{
				Draft:      services.TempTrainer{ID: "draft-1", Token: "tok", ExpiresAt: expires},
				PreviewURL: "https://fitmarket.example/trainers/temp/draft-1?token=tok",
			}, nil
		},
	}
	h := mount(NewTrainerHandlers(svc).Routes)

	rr := serve(t, h, http.MethodPost, "/drafts", `{"name":"Anna","email":"anna@example.com","city":"berlin","district":"Mitte","specialty":"Yoga","services":["Yoga"]}`, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Name != "Anna" || got.City != "berlin" || len(got.Services) != 1 {
		t.Fatalf("unexpected form passed to service: %+v", got)
	}
	var body createDraftResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "draft-1" || body.Token != "tok" || body.ExpiresAt != "2024-05-02T10:00:00Z" {
		t.Fatalf("unexpected response %+v", body)
	}
}

func TestTrainerHandlers_CreateDraftValidation(t *testing.T) {
	svc := &stubTrainerService{
		createFn: func(context.Context, services.TrainerForm) (services.CreateDraftResult, error) {
			return services.CreateDraftResult{}, services.FieldErrors{
				{Field: "city", Code: "required", Message: "is required"},
				{Field: "email", Code: "email", Message: "must be a valid e-mail address"},
			}
		},
	}
	h := mount(NewTrainerHandlers(svc).Routes)

	rr := serve(t, h, http.MethodPost, "/drafts", `{"name":"Anna","email":"nope"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body struct {
		Error  string                 `json:"error"`
		Fields []services.FieldError `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "invalid_input" || len(body.Fields) != 2 {
		t.Fatalf("expected both fields reported, got %+v", body)
	}
}

func TestTrainerHandlers_CreateDraftRejectsUnknownFields(t *testing.T) {
	h := mount(NewTrainerHandlers(&stubTrainerService{}).Routes)
	rr := serve(t, h, http.MethodPost, "/drafts", `{"name":"Anna","paid":true}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
}

func TestTrainerHandlers_ReadDraft(t *testing.T) {
	svc := &stubTrainerService{
		readFn: func(_ context.Context, id, token string) (services.DraftView, error) {
			switch {
			case id == "missing":
				return services.DraftView{}, services.ErrTrainerNotFound
			case token != "tok":
				return services.DraftView{}, services.ErrTrainerTokenMismatch
			case id == "promoted":
				return services.DraftView{}, &services.AlreadyPromotedError{DraftID: id, TrainerID: "trn_1"}
			}
			return services.DraftView{
				Draft: services.TempTrainer{
					ID:     id,
					Status: domain.TrainerStatusTemp,
					Form:   services.TrainerForm{Name: "Anna"},
					Content: services.TrainerContent{
						Hero: domain.HeroSection{Headline: "Anna | Yoga"},
					},
				},
				Expired: true,
			}, nil
		},
	}
	h := mount(NewTrainerHandlers(svc).Routes)

	rr := serve(t, h, http.MethodGet, "/drafts/draft-1?token=tok", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body draftResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Expired || body.Content.Hero.Headline != "Anna | Yoga" || body.Status != "temp" {
		t.Fatalf("unexpected draft %+v", body)
	}

	rr = serve(t, h, http.MethodGet, "/drafts/draft-1", "", map[string]string{"X-Preview-Token": "tok"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected header token accepted, got %d", rr.Code)
	}

	cases := []struct {
		target string
		status int
		code   string
	}{
		{"/drafts/draft-1?token=wrong", http.StatusForbidden, "invalid_token"},
		{"/drafts/draft-1", http.StatusForbidden, "invalid_token"},
		{"/drafts/missing?token=tok", http.StatusNotFound, "trainer_not_found"},
		{"/drafts/promoted?token=tok", http.StatusConflict, "already_promoted"},
	}
	for _, tc := range cases {
		rr := serve(t, h, http.MethodGet, tc.target, "", nil)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.target, tc.status, rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.target, err)
		}
		if body["error"] != tc.code {
			t.Fatalf("%s: expected code %s, got %v", tc.target, tc.code, body["error"])
		}
	}
}

func TestTrainerHandlers_EditDraft(t *testing.T) {
	var patch services.TrainerContent
	svc := &stubTrainerService{
		editFn: func(_ context.Context, id, token string, p services.TrainerContent) (services.TempTrainer, error) {
			if id == "old" {
				return services.TempTrainer{}, fmt.Errorf("edit: %w", services.ErrTrainerExpired)
			}
			patch = p
			return services.TempTrainer{ID: id, Content: p}, nil
		},
	}
	h := mount(NewTrainerHandlers(svc).Routes)

	rr := serve(t, h, http.MethodPatch, "/drafts/draft-1?token=tok", `{"hero":{"headline":"New headline"}}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if patch.Hero.Headline != "New headline" || patch.About.Body != "" {
		t.Fatalf("unexpected patch %+v", patch)
	}

	rr = serve(t, h, http.MethodPatch, "/drafts/old?token=tok", `{"about":{"body":"x"}}`, nil)
	if rr.Code != http.StatusGone {
		t.Fatalf("expected 410 for expired draft, got %d", rr.Code)
	}
}

func TestTrainerHandlers_StartCheckout(t *testing.T) {
	svc := &stubTrainerService{
		checkoutFn: func(_ context.Context, id, token string) (services.CheckoutResult, error) {
			if id == "down" {
				return services.CheckoutResult{}, services.ErrTrainerCheckoutUnavailable
			}
			return services.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
		},
	}
	h := mount(NewTrainerHandlers(svc).Routes)

	rr := serve(t, h, http.MethodPost, "/drafts/draft-1:checkout?token=tok", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "cs_1" || body.URL == "" {
		t.Fatalf("unexpected checkout %+v", body)
	}

	rr = serve(t, h, http.MethodPost, "/drafts/down:checkout?token=tok", "", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestTrainerHandlers_Directory(t *testing.T) {
	activated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var filter services.TrainerListFilter
	svc := &stubTrainerService{
		listFn: func(_ context.Context, f services.TrainerListFilter) (domain.CursorPage[services.Trainer], error) {
			filter = f
			return domain.CursorPage[services.Trainer]{
				Items:         []services.Trainer{{ID: "trn_1", Form: services.TrainerForm{Name: "Anna"}, ActivatedAt: &activated}},
				NextPageToken: "next",
			}, nil
		},
		getFn: func(_ context.Context, id string) (services.Trainer, error) {
			if id != "trn_1" {
				return services.Trainer{}, services.ErrTrainerNotFound
			}
			return services.Trainer{ID: id, Location: "Berlin, Mitte"}, nil
		},
	}
	h := mount(NewTrainerHandlers(svc).Routes)

	rr := serve(t, h, http.MethodGet, "/?city=Berlin&pageSize=5", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if filter.City != "Berlin" || filter.Pagination.PageSize != 5 {
		t.Fatalf("unexpected filter %+v", filter)
	}
	var list trainerListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.NextPageToken != "next" || list.Items[0].ActivatedAt != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = serve(t, h, http.MethodGet, "/?pageSize=abc", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page size, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodGet, "/trn_1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = serve(t, h, http.MethodGet, "/trn_2", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
