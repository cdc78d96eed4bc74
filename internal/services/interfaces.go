package services

import (
	"context"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
	"github.com/fitmarket/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	TrainerForm         = domain.TrainerForm
	TrainerContent      = domain.TrainerContent
	TempTrainer         = domain.TempTrainer
	Trainer             = domain.Trainer
	PaymentConfirmation = domain.PaymentConfirmation
	Lead                = domain.Lead
	ContentKind         = domain.ContentKind
	ContentSummary      = domain.ContentSummary
	ContentItem         = domain.ContentItem
	HealthReport        = domain.HealthReport
)

// TrainerService owns the draft → paid → active trainer lifecycle and the
// public directory.
type TrainerService interface {
	Create(ctx context.Context, form TrainerForm) (CreateDraftResult, error)
	Read(ctx context.Context, draftID, token string) (DraftView, error)
	Edit(ctx context.Context, draftID, token string, patch TrainerContent) (TempTrainer, error)
	Promote(ctx context.Context, draftID string, confirmation PaymentConfirmation) (Trainer, error)
	StartCheckout(ctx context.Context, draftID, token string) (CheckoutResult, error)
	GetTrainer(ctx context.Context, trainerID string) (Trainer, error)
	ListTrainers(ctx context.Context, filter TrainerListFilter) (domain.CursorPage[Trainer], error)
}

// ContentService manages markdown content items keyed by slug.
type ContentService interface {
	FindBySlug(ctx context.Context, kind ContentKind, slug string) (ContentSummary, error)
	SlugExists(ctx context.Context, kind ContentKind, slug string) (bool, error)
	Rename(ctx context.Context, cmd RenameContentCommand) (RenameContentResult, error)
	List(ctx context.Context, kind ContentKind) ([]ContentSummary, error)
	Get(ctx context.Context, kind ContentKind, slug string) (ContentItem, error)
	Put(ctx context.Context, cmd PutContentCommand) (ContentSummary, error)
	Delete(ctx context.Context, kind ContentKind, slug string) error
}

// LeadService captures leads and converts them into trainer records.
type LeadService interface {
	Capture(ctx context.Context, form LeadForm) (Lead, error)
	List(ctx context.Context, filter LeadListFilter) (domain.CursorPage[Lead], error)
	// Convert reports every expected failure in the result instead of an error.
	Convert(ctx context.Context, leadID string) ConversionResult
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

// CreateDraftResult is returned by TrainerService.Create.
type CreateDraftResult struct {
	Draft      TempTrainer
	PreviewURL string
}

// DraftView is a draft as seen by its token holder.
type DraftView struct {
	Draft   TempTrainer
	Expired bool
}

// CheckoutResult points the client at the hosted payment page.
type CheckoutResult struct {
	SessionID string
	URL       string
	ExpiresAt time.Time
}

// TrainerListFilter narrows the public directory.
type TrainerListFilter = repositories.TrainerListFilter

// LeadListFilter narrows the admin lead listing.
type LeadListFilter = repositories.LeadListFilter

// RenameContentCommand renames the item found at OldSlug to NewSlug.
type RenameContentCommand struct {
	Kind    ContentKind
	OldSlug string
	NewSlug string
}

// RenameContentResult describes a completed rename. StaleCopy is set when the
// old blob could not be removed and still exists next to the new one.
type RenameContentResult struct {
	Kind      ContentKind
	OldPath   string
	NewPath   string
	NewSlug   string
	StaleCopy bool
}

// PutContentCommand writes a markdown item.
type PutContentCommand struct {
	Kind           ContentKind
	Slug           string
	Markdown       string
	AllowOverwrite bool
}

// LeadForm is the payload of the public lead form.
type LeadForm struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,max=40"`
	City     string `json:"city" validate:"omitempty,max=80"`
	District string `json:"district" validate:"omitempty,max=80"`
	Location string `json:"location" validate:"omitempty,max=160"`
	Goal     string `json:"goal" validate:"omitempty,max=500"`
	Source   string `json:"source" validate:"omitempty,max=80"`
}

// ConversionResult is the outcome of LeadService.Convert.
type ConversionResult struct {
	Success   bool
	Message   string
	TrainerID string
}
