package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/platform/auth"
	"github.com/fitmarket/api/internal/platform/httpx"
	"github.com/fitmarket/api/internal/platform/pagination"
	"github.com/fitmarket/api/internal/services"
)

// LeadHandlers serves the public lead form and the admin lead console.
type LeadHandlers struct {
	authn *auth.Authenticator
	leads services.LeadService
}

// NewLeadHandlers constructs LeadHandlers. authn guards the admin routes.
func NewLeadHandlers(authn *auth.Authenticator, leads services.LeadService) *LeadHandlers {
	return &LeadHandlers{authn: authn, leads: leads}
}

// Routes registers the public /leads endpoints.
func (h *LeadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.captureLead)
}

// AdminRoutes registers /admin/leads endpoints. Every route requires the
// admin role.
func (h *LeadHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(admin chi.Router) {
		admin.Use(h.authn.RequireRoles(auth.RoleAdmin))
		admin.Get("/", h.listLeads)
		admin.Post("/{leadId}:convert", h.convertLead)
	})
}

type captureLeadResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type leadResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone,omitempty"`
	City               string `json:"city,omitempty"`
	District           string `json:"district,omitempty"`
	Location           string `json:"location,omitempty"`
	Goal               string `json:"goal,omitempty"`
	Source             string `json:"source,omitempty"`
	Status             string `json:"status"`
	ConvertedToTrainer bool   `json:"convertedToTrainer"`
	TrainerID          string `json:"trainerId,omitempty"`
	CreatedAt          string `json:"createdAt"`
	ConvertedAt        string `json:"convertedAt,omitempty"`
}

type leadListResponse struct {
	Items         []leadResponse `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type conversionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	TrainerID string `json:"trainerId,omitempty"`
}

func (h *LeadHandlers) captureLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.leads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("lead_service_unavailable", "lead service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req services.LeadForm
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}

	lead, err := h.leads.Capture(ctx, req)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, captureLeadResponse{
		ID:        lead.ID,
		Status:    string(lead.Status),
		CreatedAt: formatTime(lead.CreatedAt),
	})
}

func (h *LeadHandlers) listLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.leads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("lead_service_unavailable", "lead service unavailable", http.StatusServiceUnavailable))
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	status := domain.LeadStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", domain.LeadStatusNew, domain.LeadStatusConverted:
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be new or converted", http.StatusBadRequest))
		return
	}

	page, err := h.leads.List(ctx, services.LeadListFilter{
		Status:     status,
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := leadListResponse{Items: make([]leadResponse, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, lead := range page.Items {
		resp.Items = append(resp.Items, leadResponse{
			ID:                 lead.ID,
			Name:               lead.Name,
			Email:              lead.Email,
			Phone:              lead.Phone,
			City:               lead.City,
			District:           lead.District,
			Location:           lead.Location,
			Goal:               lead.Goal,
			Source:             lead.Source,
			Status:             string(lead.Status),
			ConvertedToTrainer: lead.ConvertedToTrainer,
			TrainerID:          lead.TrainerID,
			CreatedAt:          formatTime(lead.CreatedAt),
			ConvertedAt:        formatTimePtr(lead.ConvertedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// convertLead always answers with the conversion result; the HTTP status
// only distinguishes the outcome class.
func (h *LeadHandlers) convertLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.leads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("lead_service_unavailable", "lead service unavailable", http.StatusServiceUnavailable))
		return
	}
	leadID := strings.TrimSpace(chi.URLParam(r, "leadId"))

	result := h.leads.Convert(ctx, leadID)
	status := http.StatusOK
	switch {
	case result.Success:
		status = http.StatusCreated
	case result.Message == services.ConversionMessageNotFound:
		status = http.StatusNotFound
	case result.Message == services.ConversionMessageAlreadyConverted:
		status = http.StatusConflict
	default:
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, conversionResponse{
		Success:   result.Success,
		Message:   result.Message,
		TrainerID: result.TrainerID,
	})
}
