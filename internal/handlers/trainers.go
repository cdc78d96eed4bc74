package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/platform/httpx"
	"github.com/fitmarket/api/internal/platform/pagination"
	"github.com/fitmarket/api/internal/services"
)

// TrainerHandlers exposes the draft lifecycle and the public directory.
type TrainerHandlers struct {
	trainers services.TrainerService
}

// NewTrainerHandlers constructs TrainerHandlers.
func NewTrainerHandlers(trainers services.TrainerService) *TrainerHandlers {
	return &TrainerHandlers{trainers: trainers}
}

// Routes registers the /trainers endpoints.
func (h *TrainerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listTrainers)
	r.Post("/drafts", h.createDraft)
	r.Get("/drafts/{draftId}", h.readDraft)
	r.Patch("/drafts/{draftId}", h.editDraft)
	r.Post("/drafts/{draftId}:checkout", h.startCheckout)
	r.Get("/{trainerId}", h.getTrainer)
}

type createDraftRequest struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	City           string   `json:"city"`
	District       string   `json:"district"`
	Specialty      string   `json:"specialty"`
	Bio            string   `json:"bio"`
	Certifications []string `json:"certifications"`
	Services       []string `json:"services"`
}

type createDraftResponse struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	PreviewURL string `json:"previewUrl"`
	ExpiresAt  string `json:"expiresAt"`
}

type trainerFormPayload struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone,omitempty"`
	City           string   `json:"city"`
	District       string   `json:"district"`
	Specialty      string   `json:"specialty"`
	Bio            string   `json:"bio,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	Services       []string `json:"services,omitempty"`
}

type heroPayload struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline"`
}

type aboutPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type servicesPayload struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

type contactPayload struct {
	Title    string `json:"title"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

type trainerContentPayload struct {
	Hero     heroPayload     `json:"hero"`
	About    aboutPayload    `json:"about"`
	Services servicesPayload `json:"services"`
	Contact  contactPayload  `json:"contact"`
}

type draftResponse struct {
	ID        string                `json:"id"`
	Status    string                `json:"status"`
	Form      trainerFormPayload    `json:"form"`
	Content   trainerContentPayload `json:"content"`
	Expired   bool                  `json:"expired"`
	CreatedAt string                `json:"createdAt"`
	UpdatedAt string                `json:"updatedAt,omitempty"`
	ExpiresAt string                `json:"expiresAt"`
}

// editDraftRequest uses pointers so an omitted section leaves content alone.
type editDraftRequest struct {
	Hero *struct {
		Headline    string `json:"headline"`
		Subheadline string `json:"subheadline"`
	} `json:"hero"`
	About *struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"about"`
	Services *struct {
		Title string   `json:"title"`
		Items []string `json:"items"`
	} `json:"services"`
	Contact *struct {
		Title    string `json:"title"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Location string `json:"location"`
	} `json:"contact"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type trainerResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	City        string                `json:"city"`
	District    string                `json:"district"`
	Specialty   string                `json:"specialty"`
	Location    string                `json:"location"`
	Content     trainerContentPayload `json:"content"`
	ActivatedAt string                `json:"activatedAt,omitempty"`
}

type trainerListResponse struct {
	Items         []trainerResponse `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

func (h *TrainerHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trainer_service_unavailable", "trainer service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}

	result, err := h.trainers.Create(ctx, services.TrainerForm{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		City:           req.City,
		District:       req.District,
		Specialty:      req.Specialty,
		Bio:            req.Bio,
		Certifications: req.Certifications,
		Services:       req.Services,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, createDraftResponse{
		ID:         result.Draft.ID,
		Token:      result.Draft.Token,
		PreviewURL: result.PreviewURL,
		ExpiresAt:  formatTime(result.Draft.ExpiresAt),
	})
}

func (h *TrainerHandlers) readDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trainer_service_unavailable", "trainer service unavailable", http.StatusServiceUnavailable))
		return
	}
	draftID, token, ok := draftCredentials(w, r)
	if !ok {
		return
	}

	view, err := h.trainers.Read(ctx, draftID, token)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildDraftResponse(view.Draft, view.Expired))
}

func (h *TrainerHandlers) editDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trainer_service_unavailable", "trainer service unavailable", http.StatusServiceUnavailable))
		return
	}
	draftID, token, ok := draftCredentials(w, r)
	if !ok {
		return
	}

	var req editDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteBodyError(w, r, err)
		return
	}

	var patch services.TrainerContent
	if req.Hero != nil {
		patch.Hero = domain.HeroSection{Headline: req.Hero.Headline, Subheadline: req.Hero.Subheadline}
	}
	if req.About != nil {
		patch.About = domain.AboutSection{Title: req.About.Title, Body: req.About.Body}
	}
	if req.Services != nil {
		patch.Services = domain.ServicesSection{Title: req.Services.Title, Items: req.Services.Items}
	}
	if req.Contact != nil {
		patch.Contact = domain.ContactSection{
			Title:    req.Contact.Title,
			Email:    req.Contact.Email,
			Phone:    req.Contact.Phone,
			Location: req.Contact.Location,
		}
	}

	draft, err := h.trainers.Edit(ctx, draftID, token, patch)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildDraftResponse(draft, false))
}

func (h *TrainerHandlers) startCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trainer_service_unavailable", "trainer service unavailable", http.StatusServiceUnavailable))
		return
	}
	draftID, token, ok := draftCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.trainers.StartCheckout(ctx, draftID, token)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkoutResponse{
		SessionID: session.SessionID,
		URL:       session.URL,
		ExpiresAt: formatTime(session.ExpiresAt),
	})
}

func (h *TrainerHandlers) getTrainer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trainer_service_unavailable", "trainer service unavailable", http.StatusServiceUnavailable))
		return
	}
	trainerID := strings.TrimSpace(chi.URLParam(r, "trainerId"))
	if trainerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "trainer id is required", http.StatusBadRequest))
		return
	}

	trainer, err := h.trainers.GetTrainer(ctx, trainerID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildTrainerResponse(trainer))
}

func (h *TrainerHandlers) listTrainers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trainers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trainer_service_unavailable", "trainer service unavailable", http.StatusServiceUnavailable))
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	page, err := h.trainers.ListTrainers(ctx, services.TrainerListFilter{
		City:       strings.TrimSpace(r.URL.Query().Get("city")),
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := trainerListResponse{
		Items:         make([]trainerResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, trainer := range page.Items {
		resp.Items = append(resp.Items, buildTrainerResponse(trainer))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// draftCredentials reads the draft id and the preview token. The token may
// come from the query string or an X-Preview-Token header.
func draftCredentials(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	ctx := r.Context()
	draftID := strings.TrimSpace(chi.URLParam(r, "draftId"))
	if draftID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "draft id is required", http.StatusBadRequest))
		return "", "", false
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Preview-Token"))
	}
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "preview token is required", http.StatusForbidden))
		return "", "", false
	}
	return draftID, token, true
}

func buildDraftResponse(draft services.TempTrainer, expired bool) draftResponse {
	return draftResponse{
		ID:     draft.ID,
		Status: string(draft.Status),
		Form: trainerFormPayload{
			Name:           draft.Form.Name,
			Email:          draft.Form.Email,
			Phone:          draft.Form.Phone,
			City:           draft.Form.City,
			District:       draft.Form.District,
			Specialty:      draft.Form.Specialty,
			Bio:            draft.Form.Bio,
			Certifications: draft.Form.Certifications,
			Services:       draft.Form.Services,
		},
		Content:   buildContentPayload(draft.Content),
		Expired:   expired,
		CreatedAt: formatTime(draft.CreatedAt),
		UpdatedAt: formatTime(draft.UpdatedAt),
		ExpiresAt: formatTime(draft.ExpiresAt),
	}
}

func buildTrainerResponse(trainer services.Trainer) trainerResponse {
	return trainerResponse{
		ID:          trainer.ID,
		Name:        trainer.Form.Name,
		City:        trainer.Form.City,
		District:    trainer.Form.District,
		Specialty:   trainer.Form.Specialty,
		Location:    trainer.Location,
		Content:     buildContentPayload(trainer.Content),
		ActivatedAt: formatTimePtr(trainer.ActivatedAt),
	}
}

func buildContentPayload(content services.TrainerContent) trainerContentPayload {
	items := content.Services.Items
	if items == nil {
		items = []string{}
	}
	return trainerContentPayload{
		Hero:     heroPayload{Headline: content.Hero.Headline, Subheadline: content.Hero.Subheadline},
		About:    aboutPayload{Title: content.About.Title, Body: content.About.Body},
		Services: servicesPayload{Title: content.Services.Title, Items: items},
		Contact: contactPayload{
			Title:    content.Contact.Title,
			Email:    content.Contact.Email,
			Phone:    content.Contact.Phone,
			Location: content.Contact.Location,
		},
	}
}
