package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fitmarket/api/internal/domain"
	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
	"github.com/fitmarket/api/internal/platform/pagination"
	"github.com/fitmarket/api/internal/repositories"
)

const leadsCollection = "potential_users"

// LeadRepository persists marketing leads.
type LeadRepository struct {
	provider *pfirestore.Provider
	leads    *pfirestore.Collection[leadDocument]
	trainers *pfirestore.Collection[trainerDocument]
}

var _ repositories.LeadRepository = (*LeadRepository)(nil)

// NewLeadRepository constructs a Firestore-backed lead repository.
func NewLeadRepository(provider *pfirestore.Provider) (*LeadRepository, error) {
	if provider == nil {
		return nil, errors.New("lead repository: firestore provider is required")
	}
	return &LeadRepository{
		provider: provider,
		leads:    pfirestore.NewCollection[leadDocument](provider, leadsCollection, nil, nil),
		trainers: pfirestore.NewCollection[trainerDocument](provider, trainersCollection, nil, nil),
	}, nil
}

// Insert stores a new lead under a store-assigned id.
func (r *LeadRepository) Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	id, err := r.leads.Create(ctx, encodeLead(lead))
	if err != nil {
		return domain.Lead{}, err
	}
	lead.ID = id
	return lead, nil
}

// FindByID loads a lead.
func (r *LeadRepository) FindByID(ctx context.Context, leadID string) (domain.Lead, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return domain.Lead{}, pfirestore.NotFoundError("potential_users.get", "lead id is required")
	}
	doc, err := r.leads.Get(ctx, leadID)
	if err != nil {
		return domain.Lead{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List pages through leads newest first, optionally filtered by status.
func (r *LeadRepository) List(ctx context.Context, filter repositories.LeadListFilter) (domain.CursorPage[domain.Lead], error) {
	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Lead]{}, err
	}

	docs, err := r.leads.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.After, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Lead]{}, err
	}

	page := domain.CursorPage[domain.Lead]{}
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		page.NextPageToken = pagination.EncodeToken(pagination.Cursor{After: last.Data.CreatedAt.UTC(), ID: last.ID})
	}
	page.Items = make([]domain.Lead, 0, len(docs))
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// Convert reads the lead, creates the trainer built from it and marks the
// lead converted, all in one transaction. Errors from build are returned
// unchanged and nothing is written.
func (r *LeadRepository) Convert(ctx context.Context, leadID string, convertedAt time.Time, build repositories.ConvertBuilder) (domain.Trainer, error) {
	if build == nil {
		return domain.Trainer{}, errors.New("lead repository: convert builder is required")
	}
	leadID = strings.TrimSpace(leadID)
	leadRef, err := r.leads.Doc(ctx, leadID)
	if err != nil {
		return domain.Trainer{}, err
	}

	var created domain.Trainer
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(leadRef)
		if err != nil {
			return pfirestore.WrapError("potential_users.get", err)
		}
		var doc leadDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode lead %s: %w", leadID, err)
		}

		trainer, err := build(doc.toDomain(leadID))
		if err != nil {
			return err
		}
		trainerRef, err := r.trainers.Doc(ctx, trainer.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(trainerRef, encodeTrainer(trainer)); err != nil {
			return err
		}

		at := convertedAt.UTC()
		if err := tx.Update(leadRef, []firestore.Update{
			{Path: "convertedToTrainer", Value: true},
			{Path: "trainerId", Value: trainer.ID},
			{Path: "status", Value: string(domain.LeadStatusConverted)},
			{Path: "convertedAt", Value: at},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return err
		}
		created = trainer
		return nil
	})
	if err != nil {
		return domain.Trainer{}, err
	}
	return created, nil
}
