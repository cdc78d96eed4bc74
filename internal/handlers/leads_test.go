package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/services"
)

func TestLeadHandlers_Capture(t *testing.T) {
	created := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := &stubLeadService{
		captureFn: func(_ context.Context, form services.LeadForm) (services.Lead, error) {
			if form.Email == "" {
				return services.Lead{}, services.FieldErrors{{Field: "email", Code: "required", Message: "is required"}}
			}
			return services.Lead{ID: "lead-1", Status: domain.LeadStatusNew, CreatedAt: created}, nil
		},
	}
	h := mount(NewLeadHandlers(nil, svc).Routes)

	rr := serve(t, h, http.MethodPost, "/", `{"name":"Jonas","email":"jonas@example.com","goal":"Kraft"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body captureLeadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "lead-1" || body.Status != "new" {
		t.Fatalf("unexpected response %+v", body)
	}

	rr = serve(t, h, http.MethodPost, "/", `{"name":"Jonas"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestLeadHandlers_AdminRequiresAdminRole(t *testing.T) {
	svc := &stubLeadService{
		listFn: func(context.Context, services.LeadListFilter) (domain.CursorPage[services.Lead], error) {
			return domain.CursorPage[services.Lead]{}, nil
		},
	}
	h := mount(NewLeadHandlers(newTestAuthenticator(), svc).AdminRoutes)

	if rr := serve(t, h, http.MethodGet, "/", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := serve(t, h, http.MethodGet, "/", "", map[string]string{"Authorization": "Bearer editor-token"}); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for editor, got %d", rr.Code)
	}
	if rr := serve(t, h, http.MethodGet, "/", "", map[string]string{"Authorization": "Bearer admin-token"}); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}
}

func TestLeadHandlers_List(t *testing.T) {
	converted := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	var filter services.LeadListFilter
	svc := &stubLeadService{
		listFn: func(_ context.Context, f services.LeadListFilter) (domain.CursorPage[services.Lead], error) {
			filter = f
			return domain.CursorPage[services.Lead]{Items: []services.Lead{{
				ID:                 "lead-1",
				Name:               "Jonas",
				Status:             domain.LeadStatusConverted,
				ConvertedToTrainer: true,
				TrainerID:          "trn_1",
				ConvertedAt:        &converted,
			}}}, nil
		},
	}
	h := mount(NewLeadHandlers(newTestAuthenticator(), svc).AdminRoutes)
	admin := map[string]string{"Authorization": "Bearer admin-token"}

	rr := serve(t, h, http.MethodGet, "/?status=Converted&pageSize=10", "", admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if filter.Status != domain.LeadStatusConverted || filter.Pagination.PageSize != 10 {
		t.Fatalf("unexpected filter %+v", filter)
	}
	var body leadListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].TrainerID != "trn_1" || body.Items[0].ConvertedAt != "2024-04-02T09:00:00Z" {
		t.Fatalf("unexpected items %+v", body.Items)
	}

	if rr := serve(t, h, http.MethodGet, "/?status=archived", "", admin); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestLeadHandlers_Convert(t *testing.T) {
	svc := &stubLeadService{
		convertFn: func(_ context.Context, leadID string) services.ConversionResult {
			switch leadID {
			case "lead-1":
				return services.ConversionResult{Success: true, Message: services.ConversionMessageConverted, TrainerID: "trn_1"}
			case "lead-2":
				return services.ConversionResult{Message: services.ConversionMessageAlreadyConverted}
			case "lead-3":
				return services.ConversionResult{Message: services.ConversionMessageFailed}
			}
			return services.ConversionResult{Message: services.ConversionMessageNotFound}
		},
	}
	h := mount(NewLeadHandlers(newTestAuthenticator(), svc).AdminRoutes)
	admin := map[string]string{"Authorization": "Bearer admin-token"}

	cases := []struct {
		lead    string
		status  int
		message string
	}{
		{"lead-1", http.StatusCreated, services.ConversionMessageConverted},
		{"lead-2", http.StatusConflict, services.ConversionMessageAlreadyConverted},
		{"lead-3", http.StatusServiceUnavailable, services.ConversionMessageFailed},
		{"lead-9", http.StatusNotFound, services.ConversionMessageNotFound},
	}
	for _, tc := range cases {
		rr := serve(t, h, http.MethodPost, "/"+tc.lead+":convert", "", admin)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.lead, tc.status, rr.Code)
		}
		var body conversionResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.lead, err)
		}
		if body.Message != tc.message || body.Success != (tc.status == http.StatusCreated) {
			t.Fatalf("%s: unexpected body %+v", tc.lead, body)
		}
	}
}
