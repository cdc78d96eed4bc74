package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fitmarket/api/internal/domain"
	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
	"github.com/fitmarket/api/internal/repositories"
)

const trainerDraftsCollection = "trainer_drafts"

// TrainerDraftRepository persists token-gated trainer previews.
type TrainerDraftRepository struct {
	drafts *pfirestore.Collection[trainerDraftDocument]
}

var _ repositories.TrainerDraftRepository = (*TrainerDraftRepository)(nil)

// NewTrainerDraftRepository constructs a Firestore-backed draft repository.
func NewTrainerDraftRepository(provider *pfirestore.Provider) (*TrainerDraftRepository, error) {
	if provider == nil {
		return nil, errors.New("trainer draft repository: firestore provider is required")
	}
	return &TrainerDraftRepository{
		drafts: pfirestore.NewCollection[trainerDraftDocument](provider, trainerDraftsCollection, nil, nil),
	}, nil
}

// Insert writes a single new document under a store-assigned id.
func (r *TrainerDraftRepository) Insert(ctx context.Context, draft domain.TempTrainer) (domain.TempTrainer, error) {
	id, err := r.drafts.Create(ctx, encodeDraft(draft))
	if err != nil {
		return domain.TempTrainer{}, err
	}
	draft.ID = id
	return draft, nil
}

// FindByID loads a draft regardless of expiry.
func (r *TrainerDraftRepository) FindByID(ctx context.Context, draftID string) (domain.TempTrainer, error) {
	draftID = strings.TrimSpace(draftID)
	if draftID == "" {
		return domain.TempTrainer{}, pfirestore.NotFoundError("trainer_drafts.get", "draft id is required")
	}
	doc, err := r.drafts.Get(ctx, draftID)
	if err != nil {
		return domain.TempTrainer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpdateContent overwrites the content map and updatedAt. Update fails with
// NotFound when the draft is gone.
func (r *TrainerDraftRepository) UpdateContent(ctx context.Context, draftID string, content domain.TrainerContent, updatedAt time.Time) error {
	return r.drafts.Update(ctx, strings.TrimSpace(draftID), []firestore.Update{
		{Path: "content", Value: encodeContent(content)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

// Delete removes the draft.
func (r *TrainerDraftRepository) Delete(ctx context.Context, draftID string) error {
	return r.drafts.Delete(ctx, strings.TrimSpace(draftID))
}
