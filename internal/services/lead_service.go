package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/platform/pagination"
	"github.com/fitmarket/api/internal/platform/textutil"
	"github.com/fitmarket/api/internal/repositories"
)

// Conversion outcome messages.
const (
	ConversionMessageConverted        = "lead converted"
	ConversionMessageNotFound         = "lead not found"
	ConversionMessageAlreadyConverted = "lead already converted"
	ConversionMessageFailed           = "failed to convert lead"
)

var (
	// ErrLeadUnavailable wraps storage failures while capturing or listing leads.
	ErrLeadUnavailable = errors.New("lead: storage unavailable")

	errLeadAlreadyConverted = errors.New("lead: already converted")
)

// LeadServiceDeps wires the lead service.
type LeadServiceDeps struct {
	Leads       repositories.LeadRepository
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	CountryCode string
	IDGenerator func() string
}

type leadService struct {
	leads       repositories.LeadRepository
	now         func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
	countryCode string
	newID       func() string
}

var _ LeadService = (*leadService)(nil)

// NewLeadService constructs the lead service.
func NewLeadService(deps LeadServiceDeps) (LeadService, error) {
	if deps.Leads == nil {
		return nil, errors.New("lead service: lead repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	countryCode := strings.TrimSpace(deps.CountryCode)
	if countryCode == "" {
		countryCode = textutil.DefaultCountryCode
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = newTrainerID
	}
	return &leadService{
		leads: deps.Leads,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:      logger,
		countryCode: countryCode,
		newID:       newID,
	}, nil
}

func (s *leadService) Capture(ctx context.Context, form LeadForm) (Lead, error) {
	form = LeadForm{
		Name:     sanitizeText(form.Name),
		Email:    strings.TrimSpace(form.Email),
		Phone:    strings.TrimSpace(form.Phone),
		City:     sanitizeText(form.City),
		District: sanitizeText(form.District),
		Location: sanitizeText(form.Location),
		Goal:     sanitizeText(form.Goal),
		Source:   sanitizeText(form.Source),
	}
	if err := validateStruct(form); err != nil {
		return Lead{}, err
	}

	now := s.now()
	lead, err := s.leads.Insert(ctx, Lead{
		Name:      form.Name,
		Email:     form.Email,
		Phone:     form.Phone,
		City:      form.City,
		District:  form.District,
		Location:  form.Location,
		Goal:      form.Goal,
		Source:    form.Source,
		Status:    domain.LeadStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger(ctx, "lead.capture_failed", map[string]any{"error": err.Error()})
		return Lead{}, fmt.Errorf("%w: %w", ErrLeadUnavailable, err)
	}
	return lead, nil
}

func (s *leadService) List(ctx context.Context, filter LeadListFilter) (domain.CursorPage[Lead], error) {
	filter.Pagination.PageSize = pagination.Clamp(filter.Pagination.PageSize, pagination.Options{})
	filter.Pagination.PageToken = strings.TrimSpace(filter.Pagination.PageToken)
	page, err := s.leads.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Lead]{}, err
		}
		return domain.CursorPage[Lead]{}, fmt.Errorf("%w: %w", ErrLeadUnavailable, err)
	}
	return page, nil
}

// Convert creates an unpaid trainer record from a lead. The trainer write and
// the lead update commit together, and a converted lead is never converted
// again.
func (s *leadService) Convert(ctx context.Context, leadID string) ConversionResult {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return ConversionResult{Message: ConversionMessageNotFound}
	}
	now := s.now()
	trainerID := s.newID()

	trainer, err := s.leads.Convert(ctx, leadID, now, func(lead Lead) (Trainer, error) {
		if lead.ConvertedToTrainer {
			return Trainer{}, errLeadAlreadyConverted
		}
		form := TrainerForm{
			Name:      strings.TrimSpace(lead.Name),
			Email:     strings.TrimSpace(lead.Email),
			Phone:     textutil.NormalizePhone(lead.Phone, s.countryCode),
			City:      strings.TrimSpace(lead.City),
			District:  strings.TrimSpace(lead.District),
			Specialty: strings.TrimSpace(lead.Goal),
		}
		location := lead.DisplayLocation()
		return Trainer{
			ID:        trainerID,
			Form:      form,
			Location:  location,
			Content:   synthesizeContent(form, location),
			Status:    domain.TrainerStatusWebsiteCreated,
			LeadID:    lead.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	})
	switch {
	case err == nil:
		s.logger(ctx, "lead.converted", map[string]any{"leadID": leadID, "trainerID": trainer.ID})
		return ConversionResult{Success: true, Message: ConversionMessageConverted, TrainerID: trainer.ID}
	case errors.Is(err, errLeadAlreadyConverted):
		return ConversionResult{Message: ConversionMessageAlreadyConverted}
	case isNotFound(err):
		return ConversionResult{Message: ConversionMessageNotFound}
	default:
		s.logger(ctx, "lead.convert_failed", map[string]any{"leadID": leadID, "error": err.Error()})
		return ConversionResult{Message: ConversionMessageFailed}
	}
}
