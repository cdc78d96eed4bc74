package repositories

import (
	"context"
	"time"

	domain "github.com/fitmarket/api/internal/domain"
)

// PromotionMarker aliases the domain marker for repository signatures.
type PromotionMarker = domain.PromotionMarker

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	TrainerDrafts() TrainerDraftRepository
	Trainers() TrainerRepository
	Leads() LeadRepository
	ContentAliases() ContentAliasRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// TrainerDraftRepository stores unpaid trainer previews.
type TrainerDraftRepository interface {
	// Insert writes draft under a store-assigned id and returns the stored record.
	Insert(ctx context.Context, draft domain.TempTrainer) (domain.TempTrainer, error)
	FindByID(ctx context.Context, draftID string) (domain.TempTrainer, error)
	// UpdateContent replaces the content sub-document only. Last write wins.
	UpdateContent(ctx context.Context, draftID string, content domain.TrainerContent, updatedAt time.Time) error
	Delete(ctx context.Context, draftID string) error
}

// PromoteBuilder turns the draft read inside the promotion transaction into
// the permanent record. Returning an error aborts the transaction unchanged.
type PromoteBuilder func(draft domain.TempTrainer) (domain.Trainer, error)

// TrainerRepository stores permanent trainer records.
type TrainerRepository interface {
	// Promote atomically checks the promotion marker, reads the draft, and
	// creates the marker and the trainer built from it. An existing marker
	// yields *PromotionExistsError.
	Promote(ctx context.Context, draftID, paymentReference string, promotedAt time.Time, build PromoteBuilder) (domain.Trainer, error)
	FindPromotion(ctx context.Context, draftID string) (PromotionMarker, error)
	FindByID(ctx context.Context, trainerID string) (domain.Trainer, error)
	ListActive(ctx context.Context, filter TrainerListFilter) (domain.CursorPage[domain.Trainer], error)
}

// TrainerListFilter narrows the public directory.
type TrainerListFilter struct {
	City       string
	Pagination domain.Pagination
}

// ConvertBuilder turns the lead read inside the conversion transaction into a
// trainer record. Returning an error aborts the transaction unchanged.
type ConvertBuilder func(lead domain.Lead) (domain.Trainer, error)

// LeadRepository stores marketing leads.
type LeadRepository interface {
	Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	FindByID(ctx context.Context, leadID string) (domain.Lead, error)
	List(ctx context.Context, filter LeadListFilter) (domain.CursorPage[domain.Lead], error)
	// Convert creates the trainer and marks the lead converted in one transaction.
	Convert(ctx context.Context, leadID string, convertedAt time.Time, build ConvertBuilder) (domain.Trainer, error)
}

// LeadListFilter narrows the admin lead listing.
type LeadListFilter struct {
	Status     domain.LeadStatus
	Pagination domain.Pagination
}

// ContentAliasRepository maps retired content slugs to their current slug.
type ContentAliasRepository interface {
	Resolve(ctx context.Context, kind domain.ContentKind, slug string) (string, error)
	Save(ctx context.Context, kind domain.ContentKind, alias, target string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
