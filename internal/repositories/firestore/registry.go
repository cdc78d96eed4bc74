package firestore

import (
	"context"
	"fmt"

	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
	"github.com/fitmarket/api/internal/repositories"
)

// Registry is the Firestore-backed repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	drafts   *TrainerDraftRepository
	trainers *TrainerRepository
	leads    *LeadRepository
	aliases  *ContentAliasRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every Firestore repository on provider. health is
// supplied by the caller because its probes span more than Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	drafts, err := NewTrainerDraftRepository(provider)
	if err != nil {
		return nil, err
	}
	trainers, err := NewTrainerRepository(provider)
	if err != nil {
		return nil, err
	}
	leads, err := NewLeadRepository(provider)
	if err != nil {
		return nil, err
	}
	aliases, err := NewContentAliasRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		drafts:   drafts,
		trainers: trainers,
		leads:    leads,
		aliases:  aliases,
		health:   health,
	}, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if err := r.provider.Close(ctx); err != nil {
		return fmt.Errorf("close firestore: %w", err)
	}
	return nil
}

func (r *Registry) TrainerDrafts() repositories.TrainerDraftRepository  { return r.drafts }
func (r *Registry) Trainers() repositories.TrainerRepository            { return r.trainers }
func (r *Registry) Leads() repositories.LeadRepository                  { return r.leads }
func (r *Registry) ContentAliases() repositories.ContentAliasRepository { return r.aliases }
func (r *Registry) Health() repositories.HealthRepository               { return r.health }
